package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// MntoCollectorUp reports whether the operator could load its inputs, per kind.
	MntoCollectorUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mnto_collector_up",
		Help: "Managed node taint operator metrics are being collected and reported successfully",
	}, []string{"kind"})

	NodeReconciliationFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnto_node_reconciliation_failure",
			Help: "Reconciliation failures occurring when updating a specific node",
		}, []string{"node"},
	)

	NodeTaintPatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnto_node_taint_patches_total",
			Help: "Number of taint patches applied to a specific node",
		}, []string{"node"},
	)

	RulesIndexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mnto_rules_indexed",
			Help: "Number of NodeTaintRules currently in the rule index",
		},
	)

	RuleRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnto_rule_rejected_total",
			Help: "Number of times a NodeTaintRule was rejected as malformed",
		}, []string{"rule"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		MntoCollectorUp,
		NodeReconciliationFailure,
		NodeTaintPatches,
		RulesIndexed,
		RuleRejected,
	)
}

func IncreaseNodeReconciliationFailure(node string) {
	NodeReconciliationFailure.With(prometheus.Labels{
		"node": node,
	}).Inc()
}

func IncreaseNodeTaintPatches(node string) {
	NodeTaintPatches.With(prometheus.Labels{
		"node": node,
	}).Inc()
}

func SetRulesIndexed(n int) {
	RulesIndexed.Set(float64(n))
}

func IncreaseRuleRejected(rule string) {
	RuleRejected.With(prometheus.Labels{
		"rule": rule,
	}).Inc()
}
