/*


Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package nodetaintrule

import (
	"context"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/tools/record"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	"sigs.k8s.io/controller-runtime/pkg/source"

	"github.com/openshift/managed-node-taint-operator/api/v1alpha1"
	"github.com/openshift/managed-node-taint-operator/config"
	"github.com/openshift/managed-node-taint-operator/pkg/metrics"
	"github.com/openshift/managed-node-taint-operator/pkg/rules"
	"github.com/openshift/managed-node-taint-operator/pkg/trigger"
)

var (
	controllerName = "nodetaintrule_controller"

	notSyncedRequeue = time.Second
)

// Add creates a new NodeTaintRule Controller and adds it to the Manager.
func Add(mgr manager.Manager, index *rules.Index, t trigger.Trigger) error {
	return add(mgr, newReconciler(mgr, index, t))
}

// newReconciler returns a new reconcile.Reconciler.
func newReconciler(mgr manager.Manager, index *rules.Index, t trigger.Trigger) *ReconcileNodeTaintRule {
	return &ReconcileNodeTaintRule{
		Client:   mgr.GetClient(),
		recorder: mgr.GetEventRecorderFor(controllerName),
		index:    index,
		trigger:  t,
		pending:  sets.New[string](),
	}
}

// add adds a new Controller to mgr with r as the reconcile.Reconciler.
func add(mgr manager.Manager, r reconcile.Reconciler) error {
	c, err := controller.New(controllerName, mgr, controller.Options{Reconciler: r})
	if err != nil {
		return err
	}

	// Status writes do not bump the generation and are filtered out.
	return c.Watch(source.Kind(
		mgr.GetCache(),
		&v1alpha1.NodeTaintRule{},
		&handler.TypedEnqueueRequestForObject[*v1alpha1.NodeTaintRule]{},
		predicate.TypedGenerationChangedPredicate[*v1alpha1.NodeTaintRule]{},
	))
}

// ReconcileNodeTaintRule keeps the rule index in line with the NodeTaintRules in the
// cluster and re-evaluates every node when the index changes.
type ReconcileNodeTaintRule struct {
	client.Client
	recorder record.EventRecorder
	index    *rules.Index
	trigger  trigger.Trigger

	// pending holds rules whose index change has not reached the nodes yet.
	mu      sync.Mutex
	pending sets.Set[string]
}

// +kubebuilder:rbac:groups=managed.openshift.io,resources=nodetaintrules,verbs=get;list;watch
// +kubebuilder:rbac:groups=managed.openshift.io,resources=nodetaintrules/status,verbs=get;update;patch
// +kubebuilder:rbac:groups="",resources=nodes,verbs=get;list;watch;patch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

func (r *ReconcileNodeTaintRule) Reconcile(ctx context.Context, request reconcile.Request) (reconcile.Result, error) {
	if !r.index.Synced() {
		return reconcile.Result{RequeueAfter: notSyncedRequeue}, nil
	}

	rule := &v1alpha1.NodeTaintRule{}
	err := r.Get(ctx, request.NamespacedName, rule)
	if k8serr.IsNotFound(err) {
		if r.index.Remove(request.Name) {
			klog.InfoS("removed nodetaintrule from index", "rule", request.Name)
			r.markPending(request.Name)
		}
		metrics.SetRulesIndexed(r.index.Len())
		return reconcile.Result{}, r.flush(ctx, request.Name, "nodetaintrule deleted")
	}
	if err != nil {
		return reconcile.Result{}, err
	}

	changed, err := r.index.Put(rule.Name, rules.FromNodeTaintRule(rule))
	if err != nil {
		// Put only fails on malformed rules. Any older version must not stay in effect.
		klog.InfoS("rejecting malformed nodetaintrule", "rule", rule.Name, "err", err)
		metrics.IncreaseRuleRejected(rule.Name)
		r.recorder.Event(rule, corev1.EventTypeWarning, config.ReasonMalformedRule, err.Error())
		if r.index.Remove(rule.Name) {
			r.markPending(rule.Name)
		}
		metrics.SetRulesIndexed(r.index.Len())
		if err := r.setIndexed(ctx, rule, metav1.ConditionFalse, config.ReasonMalformedRule, err.Error()); err != nil {
			return reconcile.Result{}, err
		}
		return reconcile.Result{}, r.flush(ctx, rule.Name, "nodetaintrule rejected")
	}

	if changed {
		klog.InfoS("indexed nodetaintrule", "rule", rule.Name, "generation", rule.Generation)
		r.markPending(rule.Name)
	}
	metrics.SetRulesIndexed(r.index.Len())
	if err := r.setIndexed(ctx, rule, metav1.ConditionTrue, config.ReasonIndexed, "Rule is part of the active rule set"); err != nil {
		return reconcile.Result{}, err
	}
	return reconcile.Result{}, r.flush(ctx, rule.Name, "nodetaintrule changed")
}

func (r *ReconcileNodeTaintRule) setIndexed(ctx context.Context, rule *v1alpha1.NodeTaintRule, status metav1.ConditionStatus, reason, message string) error {
	stored := rule.DeepCopy()
	rule.Status.ObservedGeneration = rule.Generation
	meta.SetStatusCondition(&rule.Status.Conditions, metav1.Condition{
		Type:               config.ConditionTypeIndexed,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: rule.Generation,
	})
	if equality.Semantic.DeepEqual(stored.Status, rule.Status) {
		return nil
	}
	err := r.Status().Patch(ctx, rule, client.MergeFrom(stored))
	if err != nil {
		klog.ErrorS(err, "failed to update nodetaintrule status", "rule", rule.Name)
	}
	return client.IgnoreNotFound(err)
}

func (r *ReconcileNodeTaintRule) markPending(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.Insert(name)
}

// flush triggers a node re-evaluation if name has an undelivered index change.
// A failed trigger stays pending and is retried with the next reconcile.
func (r *ReconcileNodeTaintRule) flush(ctx context.Context, name, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending.Has(name) {
		return nil
	}
	if err := r.trigger.Trigger(ctx, reason+": "+name); err != nil {
		klog.ErrorS(err, "failed to trigger node reconciliation", "rule", name)
		return err
	}
	r.pending.Delete(name)
	return nil
}
