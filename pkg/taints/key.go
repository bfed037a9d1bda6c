package taints

import (
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Key is the canonical identity of a taint. Two taints produce the same Key
// if and only if all of their fields are equal, so Keys can be used as set
// members and map keys. Keys sort by taint key first.
type Key string

// canonical fixes the field order of the encoded form.
type canonical struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Effect    string `json:"effect"`
	TimeAdded string `json:"timeAdded,omitempty"`
}

// KeyOf canonicalizes a taint.
func KeyOf(t corev1.Taint) Key {
	c := canonical{
		Key:    t.Key,
		Value:  t.Value,
		Effect: string(t.Effect),
	}
	if t.TimeAdded != nil {
		c.TimeAdded = t.TimeAdded.UTC().Format(time.RFC3339Nano)
	}
	// Marshalling a struct of strings cannot fail.
	b, _ := json.Marshal(c)
	return Key(b)
}

// Decode turns a Key back into the taint it was produced from.
func Decode(k Key) (corev1.Taint, error) {
	var c canonical
	if err := json.Unmarshal([]byte(k), &c); err != nil {
		return corev1.Taint{}, fmt.Errorf("decoding taint key %q: %w", k, err)
	}
	t := corev1.Taint{
		Key:    c.Key,
		Value:  c.Value,
		Effect: corev1.TaintEffect(c.Effect),
	}
	if c.TimeAdded != "" {
		added, err := time.Parse(time.RFC3339Nano, c.TimeAdded)
		if err != nil {
			return corev1.Taint{}, fmt.Errorf("decoding taint key %q: %w", k, err)
		}
		timeAdded := metav1.NewTime(added)
		t.TimeAdded = &timeAdded
	}
	return t, nil
}
