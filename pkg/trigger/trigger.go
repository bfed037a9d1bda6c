// Package trigger forces every node to be reconciled again after a rule change.
package trigger

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

//go:generate mockgen -destination=mock/trigger.go -package=mock github.com/openshift/managed-node-taint-operator/pkg/trigger Trigger

// Trigger schedules a re-evaluation of every node known to the cluster.
// Calling it repeatedly is safe; pending re-evaluations of a node collapse.
type Trigger interface {
	Trigger(ctx context.Context, reason string) error
}

const (
	ModeQueue      = "queue"
	ModeAnnotation = "annotation"
)

func listNodeNames(ctx context.Context, c client.Reader) ([]string, error) {
	nodes := &corev1.NodeList{}
	if err := c.List(ctx, nodes); err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	names := make([]string, 0, len(nodes.Items))
	for i := range nodes.Items {
		names = append(names, nodes.Items[i].Name)
	}
	return names, nil
}
