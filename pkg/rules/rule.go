package rules

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/openshift/managed-node-taint-operator/api/v1alpha1"
)

// Rule is the part of a NodeTaintRule the reconciler acts on.
type Rule struct {
	// CreationTimestamp orders rules during lookup.
	CreationTimestamp time.Time
	// MatchLabels selects nodes carrying any of the pairs. Empty matches every node.
	MatchLabels    map[string]string
	WantedTaints   []corev1.Taint
	UnwantedTaints []corev1.Taint
}

// FromNodeTaintRule converts the API object into a Rule.
func FromNodeTaintRule(obj *v1alpha1.NodeTaintRule) Rule {
	return Rule{
		CreationTimestamp: obj.CreationTimestamp.Time,
		MatchLabels:       obj.Spec.MatchLabels,
		WantedTaints:      obj.Spec.WantedTaints,
		UnwantedTaints:    obj.Spec.UnwantedTaints,
	}
}

// MalformedRuleError is returned for rules that cannot be indexed.
type MalformedRuleError struct {
	RuleID string
	Err    error
}

func (e *MalformedRuleError) Error() string {
	return fmt.Sprintf("rule %q is malformed: %s", e.RuleID, e.Err)
}

func (e *MalformedRuleError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err marks a rejected rule.
func IsMalformed(err error) bool {
	var malformed *MalformedRuleError
	return errors.As(err, &malformed)
}

// Validate checks label pairs and taints the same way the API server would
// check them on a node, except for the taint effect which is passed through.
func (r Rule) Validate() (errs error) {
	keys := lo.Keys(r.MatchLabels)
	slices.Sort(keys)
	for _, k := range keys {
		for _, msg := range validation.IsQualifiedName(k) {
			errs = multierr.Append(errs, fmt.Errorf("matchLabels key %q: %s", k, msg))
		}
		for _, msg := range validation.IsValidLabelValue(r.MatchLabels[k]) {
			errs = multierr.Append(errs, fmt.Errorf("matchLabels value %q: %s", r.MatchLabels[k], msg))
		}
	}
	for i, t := range r.WantedTaints {
		errs = multierr.Append(errs, validateTaint(fmt.Sprintf("wantedTaints[%d]", i), t))
	}
	for i, t := range r.UnwantedTaints {
		errs = multierr.Append(errs, validateTaint(fmt.Sprintf("unwantedTaints[%d]", i), t))
	}
	return errs
}

func validateTaint(path string, t corev1.Taint) (errs error) {
	if t.Key == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s.key: required", path))
	} else {
		for _, msg := range validation.IsQualifiedName(t.Key) {
			errs = multierr.Append(errs, fmt.Errorf("%s.key %q: %s", path, t.Key, msg))
		}
	}
	for _, msg := range validation.IsValidLabelValue(t.Value) {
		errs = multierr.Append(errs, fmt.Errorf("%s.value %q: %s", path, t.Value, msg))
	}
	if t.Effect == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s.effect: required", path))
	}
	return errs
}
