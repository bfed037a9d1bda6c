package int

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/openshift/managed-node-taint-operator/api/v1alpha1"
)

const WorkerRoleLabel = "node-role.kubernetes.io/worker"

type Integration struct {
	Client client.Client
}

// NewIntegration talks to the cluster of the current kubeconfig without a cache,
// so every read sees the operator's latest write.
func NewIntegration() (*Integration, error) {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))

	c, err := client.New(ctrl.GetConfigOrDie(), client.Options{Scheme: scheme})
	if err != nil {
		return nil, err
	}
	return &Integration{Client: c}, nil
}

func (i *Integration) Shutdown() {
}

func (i *Integration) GetWorkerNodes(ctx context.Context) ([]corev1.Node, error) {
	nodes := &corev1.NodeList{}
	if err := i.Client.List(ctx, nodes, client.HasLabels{WorkerRoleLabel}); err != nil {
		return nil, err
	}
	if len(nodes.Items) == 0 {
		return nil, fmt.Errorf("no worker nodes found")
	}
	return nodes.Items, nil
}

// ApplyRule creates the rule, or replaces the spec of an existing rule of the same name.
func (i *Integration) ApplyRule(ctx context.Context, name string, spec v1alpha1.NodeTaintRuleSpec) error {
	rule := &v1alpha1.NodeTaintRule{ObjectMeta: metav1.ObjectMeta{Name: name}}
	_, err := ctrl.CreateOrUpdate(ctx, i.Client, rule, func() error {
		rule.Spec = spec
		return nil
	})
	return err
}

func (i *Integration) DeleteRule(ctx context.Context, name string) error {
	rule := &v1alpha1.NodeTaintRule{ObjectMeta: metav1.ObjectMeta{Name: name}}
	return client.IgnoreNotFound(i.Client.Delete(ctx, rule))
}

func (i *Integration) GetRule(ctx context.Context, name string) (*v1alpha1.NodeTaintRule, error) {
	rule := &v1alpha1.NodeTaintRule{}
	err := i.Client.Get(ctx, client.ObjectKey{Name: name}, rule)
	return rule, err
}

// WorkerTaints returns, per worker node, whether it carries a taint with the given key and value.
func (i *Integration) WorkerTaints(ctx context.Context, key, value string) (map[string]bool, error) {
	nodes, err := i.GetWorkerNodes(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, node := range nodes {
		out[node.Name] = false
		for _, taint := range node.Spec.Taints {
			if taint.Key == key && taint.Value == value {
				out[node.Name] = true
				break
			}
		}
	}
	return out, nil
}

// WaitTimeout bounds how long the tests wait for the operator to converge.
const WaitTimeout = 30 * time.Second
