package rules

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"github.com/openshift/managed-node-taint-operator/api/v1alpha1"
	"github.com/openshift/managed-node-taint-operator/pkg/metrics"
)

// Loader fills an Index from a full list of NodeTaintRules and marks it synced.
// It runs once, on the leader only, as a manager runnable. A standby replica
// keeps an empty unsynced index and so never acts on rules that were deleted
// while it was waiting for the lease.
type Loader struct {
	Reader client.Reader
	Index  *Index

	// Attempts bounds the list retries. Zero means 5.
	Attempts uint
	Delay    time.Duration
}

func (l *Loader) Start(ctx context.Context) error {
	if err := l.Load(ctx); err != nil {
		metrics.MntoCollectorUp.WithLabelValues("nodetaintrule").Set(0)
		return err
	}
	metrics.MntoCollectorUp.WithLabelValues("nodetaintrule").Set(1)
	return nil
}

func (l *Loader) NeedLeaderElection() bool {
	return true
}

// ReadyzCheck fails while this replica leads and its index is not yet synced.
// Replicas still waiting on elected report ready.
func ReadyzCheck(index *Index, elected <-chan struct{}) healthz.Checker {
	return func(_ *http.Request) error {
		select {
		case <-elected:
		default:
			return nil
		}
		if !index.Synced() {
			return errors.New("nodetaintrules not loaded yet")
		}
		return nil
	}
}

// Load lists every rule and puts it into the index. Malformed rules are
// skipped; the rule controller reports them on the rule itself.
func (l *Loader) Load(ctx context.Context) error {
	attempts, delay := l.Attempts, l.Delay
	if attempts == 0 {
		attempts = 5
	}
	if delay == 0 {
		delay = time.Second
	}

	list := &v1alpha1.NodeTaintRuleList{}
	if err := retry.Do(
		func() error { return l.Reader.List(ctx, list) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			klog.V(2).InfoS("retrying nodetaintrule list", "attempt", n+1, "err", err)
		}),
	); err != nil {
		return fmt.Errorf("listing nodetaintrules: %w", err)
	}

	for i := range list.Items {
		rule := &list.Items[i]
		if _, err := l.Index.Put(rule.Name, FromNodeTaintRule(rule)); err != nil {
			klog.InfoS("skipping malformed nodetaintrule", "rule", rule.Name, "err", err)
		}
	}
	l.Index.MarkSynced()
	metrics.SetRulesIndexed(l.Index.Len())
	klog.InfoS("loaded nodetaintrules", "count", l.Index.Len())
	return nil
}
