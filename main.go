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

package main

import (
	"os"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/source"

	"github.com/openshift/managed-node-taint-operator/api/v1alpha1"
	"github.com/openshift/managed-node-taint-operator/controllers/node"
	"github.com/openshift/managed-node-taint-operator/controllers/nodetaintrule"
	"github.com/openshift/managed-node-taint-operator/pkg/logging"
	"github.com/openshift/managed-node-taint-operator/pkg/operator/options"
	"github.com/openshift/managed-node-taint-operator/pkg/rules"
	"github.com/openshift/managed-node-taint-operator/pkg/trigger"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
}

func main() {
	opts := options.New().MustParse()
	if _, err := logging.Setup(opts.LogLevel, opts.LogDevelopment); err != nil {
		klog.ErrorS(err, "unable to set up logging")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: opts.MetricsBindAddress},
		HealthProbeBindAddress: opts.HealthProbeBindAddress,
		LeaderElection:         opts.EnableLeaderElection,
		LeaderElectionID:       "managed-node-taint-operator-lock",
	})
	if err != nil {
		klog.ErrorS(err, "unable to start manager")
		os.Exit(1)
	}

	index := rules.NewIndex()
	if err := mgr.Add(&rules.Loader{Reader: mgr.GetClient(), Index: index}); err != nil {
		klog.ErrorS(err, "unable to add rule loader")
		os.Exit(1)
	}

	var (
		t     trigger.Trigger
		extra source.Source
	)
	switch opts.TriggerMode {
	case trigger.ModeAnnotation:
		t = trigger.NewAnnotation(mgr.GetClient(), opts.TriggerConcurrency)
	default:
		q := trigger.NewQueue(mgr.GetClient(), trigger.DefaultQueueSize)
		t, extra = q, q.Source()
	}

	if err := node.Add(mgr, index, extra, opts.MaxConcurrentReconciles); err != nil {
		klog.ErrorS(err, "unable to create controller", "controller", "Node")
		os.Exit(1)
	}
	if err := nodetaintrule.Add(mgr, index, t); err != nil {
		klog.ErrorS(err, "unable to create controller", "controller", "NodeTaintRule")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		klog.ErrorS(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", rules.ReadyzCheck(index, mgr.Elected())); err != nil {
		klog.ErrorS(err, "unable to set up ready check")
		os.Exit(1)
	}

	klog.InfoS("starting manager", "triggerMode", opts.TriggerMode)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		klog.ErrorS(err, "problem running manager")
		os.Exit(1)
	}
}
