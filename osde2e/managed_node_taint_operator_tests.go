//go:build osde2e
// +build osde2e

package osde2etests

import (
	"context"
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	clustersmgmtv1 "github.com/openshift-online/ocm-sdk-go/clustersmgmt/v1"
	machinev1beta1 "github.com/openshift/api/machine/v1beta1"
	"github.com/openshift/managed-node-taint-operator/api/v1alpha1"
	"github.com/openshift/managed-node-taint-operator/config"
	"github.com/openshift/osde2e-common/pkg/clients/ocm"
	"github.com/openshift/osde2e-common/pkg/clients/openshift"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/e2e-framework/klient/k8s/resources"
	"sigs.k8s.io/e2e-framework/klient/wait"
	"sigs.k8s.io/e2e-framework/pkg/envconf"
)

var _ = ginkgo.Describe("managed-node-taint-operator", ginkgo.Ordered, func() {
	var (
		k8s             *openshift.Client
		machinepoolName string
		machineSetName  string
		ruleName        string
		poolLabel       = "osde2e.managed.openshift.io/pool"
	)

	ginkgo.BeforeAll(func(ctx context.Context) {
		clusterID := os.Getenv("OCM_CLUSTER_ID")
		Expect(clusterID).ShouldNot(BeEmpty(), "OCM_CLUSTER_ID is required but not set")

		ocmConn, err := ocm.New(ctx, os.Getenv("OCM_TOKEN"), ocm.Stage)
		Expect(err).ShouldNot(HaveOccurred(), "unable to setup ocm client")
		ginkgo.DeferCleanup(ocmConn.Connection.Close)

		ocmClusterClient := ocmConn.ClustersMgmt().V1().Clusters().Cluster(clusterID)
		clusterResp, err := ocmClusterClient.Get().SendContext(ctx)
		Expect(err).Should(BeNil(), "unable to fetch cluster %s", clusterID)

		cluster := clusterResp.Body()
		machinepoolReplicaCount := 1
		if cluster.MultiAZ() {
			machinepoolReplicaCount = 3
		}
		log.SetLogger(ginkgo.GinkgoLogr)
		k8s, err = openshift.New(ginkgo.GinkgoLogr)
		Expect(err).ShouldNot(HaveOccurred(), "unable to setup k8s client")

		machinepoolName = envconf.RandomName("osde2e", 10)
		ruleName = machinepoolName
		var instanceType = "m5.xlarge"
		if cluster.CloudProvider().ID() == "gcp" {
			// https://docs.openshift.com/dedicated/osd_architecture/osd_policy/osd-service-definition.html#gcp-compute-types_osd-service-definition
			instanceType = "custom-4-16384"
		}
		machinepool, err := clustersmgmtv1.NewMachinePool().
			ID(machinepoolName).
			InstanceType(instanceType).
			Replicas(machinepoolReplicaCount).
			Labels(map[string]string{poolLabel: machinepoolName}).
			Build()
		Expect(err).Should(BeNil(), "machinepool build failed")
		_, err = ocmClusterClient.MachinePools().Add().Body(machinepool).SendContext(ctx)
		Expect(err).Should(BeNil(), "failed to create machinepool")

		ginkgo.DeferCleanup(ocmClusterClient.MachinePools().MachinePool(machinepoolName).Delete().SendContext)

		err = wait.For(func() (bool, error) {
			lblSel := resources.WithLabelSelector(labels.FormatLabels(map[string]string{"hive.openshift.io/machine-pool": machinepoolName}))
			var machineSetList machinev1beta1.MachineSetList
			if err = k8s.WithNamespace("openshift-machine-api").List(ctx, &machineSetList, lblSel); err != nil {
				return false, fmt.Errorf("unable to list machinesets: %w", err)
			}
			if len(machineSetList.Items) < 1 {
				return false, nil
			}
			machineSet := machineSetList.Items[0]
			machineSetName = machineSet.GetName()
			return machineSet.Status.ReadyReplicas == ptr.Deref(machineSet.Spec.Replicas, 0), nil
		}, wait.WithTimeout(600*time.Second))
		Expect(err).Should(BeNil(), "wait.For machinepool ready failed")

		ginkgo.DeferCleanup(func(ctx context.Context) error {
			return deleteRule(ctx, k8s, ruleName)
		})
	})

	haveTaint := func(node corev1.Node, taint map[string]string) bool {
		for _, t := range node.Spec.Taints {
			if t.Key == taint["key"] {
				return t.Value == taint["value"] && string(t.Effect) == taint["effect"]
			}
		}
		return false
	}

	lackTaint := func(node corev1.Node, taint map[string]string) bool {
		for _, t := range node.Spec.Taints {
			if t.Key == taint["key"] {
				return false
			}
		}
		return true
	}

	nodesTo := func(ctx context.Context, taint map[string]string, check func(corev1.Node, map[string]string) bool) func() (bool, error) {
		return func() (bool, error) {
			lblSel := resources.WithLabelSelector(labels.FormatLabels(map[string]string{"machine.openshift.io/cluster-api-machineset": machineSetName}))
			var machineList machinev1beta1.MachineList
			if err := k8s.WithNamespace("openshift-machine-api").List(ctx, &machineList, lblSel); err != nil {
				return false, fmt.Errorf("unable to list machines: %w", err)
			}
			for _, machine := range machineList.Items {
				if machine.Status.NodeRef == nil {
					return false, nil
				}
				var node corev1.Node
				if err := k8s.Get(ctx, machine.Status.NodeRef.Name, "", &node); err != nil {
					return false, err
				}
				if !check(node, taint) {
					return false, nil
				}
			}
			return true, nil
		}
	}

	taint := map[string]string{"key": "osde2e", "value": "one", "effect": "NoSchedule"}

	ginkgo.It("adds wanted taints to matching nodes", func(ctx context.Context) {
		err := applyRule(ctx, k8s, ruleName, v1alpha1.NodeTaintRuleSpec{
			MatchLabels:  map[string]string{poolLabel: machinepoolName},
			WantedTaints: []corev1.Taint{{Key: taint["key"], Value: taint["value"], Effect: corev1.TaintEffect(taint["effect"])}},
		})
		Expect(err).Should(BeNil(), "failed to apply nodetaintrule")
		Expect(wait.For(nodesTo(ctx, taint, haveTaint), wait.WithTimeout(2*time.Minute))).Should(BeNil(), "waiting for taints to be added failed")
	})

	ginkgo.It("removes unwanted taints from matching nodes", func(ctx context.Context) {
		err := applyRule(ctx, k8s, ruleName, v1alpha1.NodeTaintRuleSpec{
			MatchLabels:    map[string]string{poolLabel: machinepoolName},
			UnwantedTaints: []corev1.Taint{{Key: taint["key"], Value: taint["value"], Effect: corev1.TaintEffect(taint["effect"])}},
		})
		Expect(err).Should(BeNil(), "failed to apply nodetaintrule")
		Expect(wait.For(nodesTo(ctx, taint, lackTaint), wait.WithTimeout(2*time.Minute))).Should(BeNil(), "waiting for taints to be removed failed")
	})

	ginkgo.It("can be upgraded", func(ctx context.Context) {
		err := k8s.UpgradeOperator(ctx, config.OperatorName, config.OperatorNamespace)
		Expect(err).NotTo(HaveOccurred(), "operator upgrade failed")
	})
})

func ruleObject(name string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(v1alpha1.GroupVersion.WithKind("NodeTaintRule"))
	u.SetName(name)
	return u
}

// applyRule creates or replaces a NodeTaintRule through the unstructured client,
// so the suite does not depend on the operator's types being in the client scheme.
func applyRule(ctx context.Context, k8s *openshift.Client, name string, spec v1alpha1.NodeTaintRuleSpec) error {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(&spec)
	if err != nil {
		return err
	}
	u := ruleObject(name)
	err = k8s.Get(ctx, name, "", u)
	switch {
	case apierrors.IsNotFound(err):
		u = ruleObject(name)
		u.Object["spec"] = content
		return k8s.Create(ctx, u)
	case err != nil:
		return err
	}
	u.Object["spec"] = content
	return k8s.Update(ctx, u)
}

func deleteRule(ctx context.Context, k8s *openshift.Client, name string) error {
	err := k8s.Delete(ctx, ruleObject(name))
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}
