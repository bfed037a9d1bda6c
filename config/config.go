package config

const (
	OperatorName      string = "managed-node-taint-operator"
	OperatorNamespace string = "openshift-managed-node-taint-operator"
)

const (
	// WantsTaintsAnnotation holds a counter that is bumped on every node to force
	// re-evaluation when the operator runs with the annotation trigger.
	WantsTaintsAnnotation = "managed.openshift.io/wants-taints"

	// ConditionTypeIndexed reports whether a NodeTaintRule is part of the active rule set.
	ConditionTypeIndexed = "Indexed"

	ReasonIndexed       = "Indexed"
	ReasonMalformedRule = "MalformedRule"
)
