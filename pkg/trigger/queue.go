package trigger

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/source"
)

// DefaultQueueSize is the buffer of the event channel between the rule and node
// controllers.
const DefaultQueueSize = 1024

// Queue hands reconcile requests for every node straight to the node
// controller's workqueue. Requests for a node that is already queued collapse
// into one.
type Queue struct {
	reader client.Reader
	events chan event.GenericEvent
}

// NewQueue returns a Queue listing nodes through reader and buffering up to
// size requests.
func NewQueue(reader client.Reader, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{reader: reader, events: make(chan event.GenericEvent, size)}
}

// Source feeds the node controller. It must be watched by exactly one controller.
func (q *Queue) Source() source.Source {
	return source.Channel(q.events, &handler.EnqueueRequestForObject{})
}

func (q *Queue) Trigger(ctx context.Context, reason string) error {
	names, err := listNodeNames(ctx, q.reader)
	if err != nil {
		return err
	}
	for _, name := range names {
		ev := event.GenericEvent{Object: &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: name}}}
		select {
		case q.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	klog.V(2).InfoS("queued nodes for reconciliation", "reason", reason, "nodes", len(names))
	return nil
}
