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

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NodeTaintRuleSpec defines which taints nodes carrying given labels should or should not have.
type NodeTaintRuleSpec struct {
	// matchLabels selects the nodes this rule applies to. A node matches when it carries
	// at least one of the listed label pairs. An empty map matches every node.
	// +optional
	MatchLabels map[string]string `json:"matchLabels,omitempty"`

	// wantedTaints are added to every matching node.
	// +optional
	WantedTaints []corev1.Taint `json:"wantedTaints,omitempty"`

	// unwantedTaints are removed from every matching node.
	// +optional
	UnwantedTaints []corev1.Taint `json:"unwantedTaints,omitempty"`
}

// NodeTaintRuleStatus defines the observed state of NodeTaintRule.
type NodeTaintRuleStatus struct {
	// observedGeneration is the generation last processed by the operator.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// conditions reports whether the rule is part of the active rule set.
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster,shortName=ntr
// +kubebuilder:printcolumn:name="Indexed",type=string,JSONPath=`.status.conditions[?(@.type=="Indexed")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// NodeTaintRule is the Schema for the nodetaintrules API
type NodeTaintRule struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   NodeTaintRuleSpec   `json:"spec,omitempty"`
	Status NodeTaintRuleStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// NodeTaintRuleList contains a list of NodeTaintRule
type NodeTaintRuleList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []NodeTaintRule `json:"items"`
}

func init() {
	SchemeBuilder.Register(&NodeTaintRule{}, &NodeTaintRuleList{})
}
