package trigger

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/openshift/managed-node-taint-operator/config"
)

// DefaultConcurrency bounds the number of nodes annotated in parallel.
const DefaultConcurrency = 10

// Annotation bumps a counter annotation on every node. The node controller
// watches the annotation, so each bump produces a node update event.
type Annotation struct {
	client      client.Client
	concurrency int
}

func NewAnnotation(c client.Client, concurrency int) *Annotation {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Annotation{client: c, concurrency: concurrency}
}

func (a *Annotation) Trigger(ctx context.Context, reason string) error {
	names, err := listNodeNames(ctx, a.client)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, name := range names {
		g.Go(func() error {
			return a.bump(ctx, name)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	klog.V(2).InfoS("annotated nodes for reconciliation", "reason", reason, "nodes", len(names))
	return nil
}

func (a *Annotation) bump(ctx context.Context, name string) error {
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		node := &corev1.Node{}
		if err := a.client.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
			return err
		}
		stored := node.DeepCopy()
		if node.Annotations == nil {
			node.Annotations = map[string]string{}
		}
		node.Annotations[config.WantsTaintsAnnotation] = NextCounter(node.Annotations[config.WantsTaintsAnnotation])
		return a.client.Patch(ctx, node, client.MergeFromWithOptions(stored, client.MergeFromWithOptimisticLock{}))
	})
	if client.IgnoreNotFound(err) != nil {
		return fmt.Errorf("annotating node %s: %w", name, err)
	}
	return nil
}

// ParseCounter reads a counter annotation. Missing, corrupt and negative values
// read as zero.
func ParseCounter(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NextCounter returns the successor of the counter s. It wraps back to 1 after
// math.MaxInt32 so the annotation stays bounded.
func NextCounter(s string) string {
	n := ParseCounter(s)
	if n >= math.MaxInt32 {
		n = 0
	}
	return strconv.Itoa(n + 1)
}
