package reconciler

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/openshift/managed-node-taint-operator/pkg/rules"
	"github.com/openshift/managed-node-taint-operator/pkg/taints"
)

// PatchRequest replaces the taints of a node.
type PatchRequest struct {
	NodeName string
	// Taints is the complete new taint list.
	Taints  []corev1.Taint
	Added   []corev1.Taint
	Removed []corev1.Taint
}

// NodeReconciler computes the taints a node should carry from the rules in an
// index.
//
// It holds no per-node state and may be used for many nodes at once, but the
// caller must not reconcile the same node from two goroutines concurrently:
// the PatchRequest is computed from a read of the node and replaces its whole
// taint list.
type NodeReconciler struct {
	index *rules.Index
}

// NewNodeReconciler returns a NodeReconciler reading rules from index.
func NewNodeReconciler(index *rules.Index) *NodeReconciler {
	return &NodeReconciler{index: index}
}

// DesiredTaints folds every rule matching labels over current, in lookup order:
// a rule first adds its wanted taints, then removes its unwanted ones. When two
// rules disagree about a taint the later one wins. Taints no matching rule
// mentions are kept. current is not modified.
func (r *NodeReconciler) DesiredTaints(current taints.Set, labels map[string]string) taints.Set {
	desired := current.Clone()
	for _, e := range r.index.Lookup(labels) {
		desired.Insert(e.Wanted.UnsortedList()...)
		desired.Delete(e.Unwanted.UnsortedList()...)
	}
	return desired
}

// Reconcile returns the patch that brings node to its desired taints, or nil
// when it already carries them.
func (r *NodeReconciler) Reconcile(node *corev1.Node) *PatchRequest {
	current := taints.NewSet(node.Spec.Taints...)
	desired := r.DesiredTaints(current, node.Labels)
	if desired.Equal(current) {
		return nil
	}
	return &PatchRequest{
		NodeName: node.Name,
		Taints:   taints.Merge(node.Spec.Taints, desired),
		Added:    taints.List(desired.Difference(current)),
		Removed:  taints.List(current.Difference(desired)),
	}
}

// Apply writes the patch onto node.
func (p *PatchRequest) Apply(node *corev1.Node) {
	node.Spec.Taints = p.Taints
}

// Changed lists the keys of every added or removed taint.
func (p *PatchRequest) Changed() []string {
	keys := sets.New[string]()
	for _, t := range p.Added {
		keys.Insert(t.Key)
	}
	for _, t := range p.Removed {
		keys.Insert(t.Key)
	}
	return sets.List(keys)
}
