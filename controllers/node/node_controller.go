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

package node

import (
	"context"
	"maps"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	"sigs.k8s.io/controller-runtime/pkg/source"

	"github.com/openshift/managed-node-taint-operator/config"
	"github.com/openshift/managed-node-taint-operator/pkg/metrics"
	"github.com/openshift/managed-node-taint-operator/pkg/reconciler"
	"github.com/openshift/managed-node-taint-operator/pkg/rules"
)

var (
	controllerName = "node_controller"

	// notSyncedRequeue is how long a node waits for the rule index to load.
	notSyncedRequeue = time.Second
)

const ReasonTaintsUpdated = "TaintsUpdated"

// Add creates a new Node Controller and adds it to the Manager.
// extra, when set, is watched in addition to node events; the queue trigger
// delivers its requests through it.
func Add(mgr manager.Manager, index *rules.Index, extra source.Source, maxConcurrentReconciles int) error {
	return add(mgr, newReconciler(mgr, index), extra, maxConcurrentReconciles)
}

// newReconciler returns a new reconcile.Reconciler.
func newReconciler(mgr manager.Manager, index *rules.Index) *ReconcileNode {
	return &ReconcileNode{
		Client:     mgr.GetClient(),
		apiReader:  mgr.GetAPIReader(),
		recorder:   mgr.GetEventRecorderFor(controllerName),
		index:      index,
		reconciler: reconciler.NewNodeReconciler(index),
	}
}

// add adds a new Controller to mgr with r as the reconcile.Reconciler.
func add(mgr manager.Manager, r reconcile.Reconciler, extra source.Source, maxConcurrentReconciles int) error {
	c, err := controller.New(controllerName, mgr, controller.Options{
		Reconciler:              r,
		MaxConcurrentReconciles: maxConcurrentReconciles,
	})
	if err != nil {
		return err
	}

	// Watch for node changes that can change the desired taints.
	err = c.Watch(source.Kind(
		mgr.GetCache(),
		&corev1.Node{},
		&handler.TypedEnqueueRequestForObject[*corev1.Node]{},
		predicate.TypedFuncs[*corev1.Node]{UpdateFunc: nodeChanged},
	))
	if err != nil {
		return err
	}

	if extra != nil {
		return c.Watch(extra)
	}
	return nil
}

// nodeChanged passes updates to labels, taints or the trigger annotation.
func nodeChanged(e event.TypedUpdateEvent[*corev1.Node]) bool {
	if e.ObjectOld == nil || e.ObjectNew == nil {
		return true
	}
	return !maps.Equal(e.ObjectOld.Labels, e.ObjectNew.Labels) ||
		!equality.Semantic.DeepEqual(e.ObjectOld.Spec.Taints, e.ObjectNew.Spec.Taints) ||
		e.ObjectOld.Annotations[config.WantsTaintsAnnotation] != e.ObjectNew.Annotations[config.WantsTaintsAnnotation]
}

// ReconcileNode keeps the taints of a node in line with the NodeTaintRules matching its labels.
type ReconcileNode struct {
	client.Client
	apiReader  client.Reader
	recorder   record.EventRecorder
	index      *rules.Index
	reconciler *reconciler.NodeReconciler
}

// +kubebuilder:rbac:groups="",resources=nodes,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

func (r *ReconcileNode) Reconcile(ctx context.Context, request reconcile.Request) (reconcile.Result, error) {
	if !r.index.Synced() {
		return reconcile.Result{RequeueAfter: notSyncedRequeue}, nil
	}

	var (
		node  *corev1.Node
		patch *reconciler.PatchRequest
		// The cache may lag behind a conflicting write, so retries read from the API server.
		reader client.Reader = r.Client
	)
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		node = &corev1.Node{}
		if err := reader.Get(ctx, request.NamespacedName, node); err != nil {
			return err
		}
		reader = r.apiReader

		patch = r.reconciler.Reconcile(node)
		if patch == nil {
			return nil
		}
		stored := node.DeepCopy()
		patch.Apply(node)
		return r.Client.Patch(ctx, node, client.MergeFromWithOptions(stored, client.MergeFromWithOptimisticLock{}))
	})
	if k8serr.IsNotFound(err) {
		// Node is gone, nothing left to taint.
		return reconcile.Result{}, nil
	}
	if err != nil {
		metrics.IncreaseNodeReconciliationFailure(request.Name)
		klog.ErrorS(err, "failed to update taints for node", "node", request.Name)
		return reconcile.Result{}, err
	}
	if patch == nil {
		return reconcile.Result{}, nil
	}

	klog.InfoS("updating taints for node", "node", patch.NodeName, "taints", patch.Taints, "added", patch.Added, "removed", patch.Removed)
	metrics.IncreaseNodeTaintPatches(patch.NodeName)
	r.recorder.Eventf(node, corev1.EventTypeNormal, ReasonTaintsUpdated, "Updated taints %s", strings.Join(patch.Changed(), ", "))
	return reconcile.Result{}, nil
}
