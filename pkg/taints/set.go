package taints

import (
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Set is a set of canonicalized taints.
type Set = sets.Set[Key]

// NewSet canonicalizes ts into a Set. Duplicates collapse.
func NewSet(ts ...corev1.Taint) Set {
	return sets.New(lo.Map(ts, func(t corev1.Taint, _ int) Key { return KeyOf(t) })...)
}

// List returns the taints of s ordered by Key.
func List(s Set) []corev1.Taint {
	return lo.Map(sets.List(s), func(k Key, _ int) corev1.Taint {
		// Every Key in a Set was produced by KeyOf.
		return lo.Must(Decode(k))
	})
}

// Merge returns current with the members of desired that current lacks appended,
// dropping every taint of current that is not in desired. The relative order of
// retained taints is kept so that patches only move what changed.
func Merge(current []corev1.Taint, desired Set) []corev1.Taint {
	out := make([]corev1.Taint, 0, desired.Len())
	seen := sets.New[Key]()
	for _, t := range current {
		k := KeyOf(t)
		if !desired.Has(k) || seen.Has(k) {
			continue
		}
		seen.Insert(k)
		out = append(out, t)
	}
	return append(out, List(desired.Difference(seen))...)
}
