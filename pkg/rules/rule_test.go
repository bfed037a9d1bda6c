package rules_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"github.com/openshift/managed-node-taint-operator/api/v1alpha1"
	"github.com/openshift/managed-node-taint-operator/pkg/rules"
)

func loadFixtures() []v1alpha1.NodeTaintRule {
	b, err := os.ReadFile("testdata/rules.yaml")
	Expect(err).NotTo(HaveOccurred())
	var out []v1alpha1.NodeTaintRule
	Expect(yaml.Unmarshal(b, &out)).To(Succeed())
	return out
}

var _ = Describe("Rule", func() {
	It("is built from a NodeTaintRule", func() {
		fixtures := loadFixtures()
		Expect(fixtures).To(HaveLen(3))

		r := rules.FromNodeTaintRule(&fixtures[0])
		Expect(r.CreationTimestamp).To(Equal(fixtures[0].CreationTimestamp.Time))
		Expect(r.MatchLabels).To(Equal(map[string]string{"topology.kubernetes.io/zone": "a"}))
		Expect(r.WantedTaints).To(ConsistOf(corev1.Taint{Key: "dedicated", Value: "infra", Effect: corev1.TaintEffectNoSchedule}))
		Expect(r.UnwantedTaints).To(BeEmpty())
	})

	It("accepts every fixture", func() {
		for _, obj := range loadFixtures() {
			Expect(rules.FromNodeTaintRule(&obj).Validate()).To(Succeed(), obj.Name)
		}
	})

	It("accepts an empty rule", func() {
		Expect(rules.Rule{}.Validate()).To(Succeed())
	})

	It("does not validate the taint effect value", func() {
		r := rules.Rule{WantedTaints: []corev1.Taint{{Key: "x", Effect: "Sometimes"}}}
		Expect(r.Validate()).To(Succeed())
	})

	DescribeTable("rejects malformed content",
		func(r rules.Rule, msg string) {
			err := r.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(msg))
		},
		Entry("empty label key", rules.Rule{MatchLabels: map[string]string{"": "a"}}, "matchLabels key"),
		Entry("bad label key", rules.Rule{MatchLabels: map[string]string{"not a key": "a"}}, "matchLabels key"),
		Entry("bad label value", rules.Rule{MatchLabels: map[string]string{"zone": "a b"}}, "matchLabels value"),
		Entry("taint without key", rules.Rule{WantedTaints: []corev1.Taint{{Effect: corev1.TaintEffectNoSchedule}}}, "wantedTaints[0].key: required"),
		Entry("taint without effect", rules.Rule{UnwantedTaints: []corev1.Taint{{Key: "x"}}}, "unwantedTaints[0].effect: required"),
		Entry("bad taint value", rules.Rule{WantedTaints: []corev1.Taint{{Key: "x", Value: "a b", Effect: corev1.TaintEffectNoSchedule}}}, "wantedTaints[0].value"),
	)

	It("reports every problem at once", func() {
		r := rules.Rule{
			MatchLabels:    map[string]string{"zone": "a b"},
			UnwantedTaints: []corev1.Taint{{Key: "x"}},
		}
		err := r.Validate()
		Expect(err).To(MatchError(And(ContainSubstring("matchLabels value"), ContainSubstring("effect: required"))))
	})

	It("wraps rejections in a MalformedRuleError", func() {
		_, err := rules.NewIndex().Put("bad", rules.Rule{UnwantedTaints: []corev1.Taint{{Key: "x"}}})
		Expect(rules.IsMalformed(err)).To(BeTrue())
		Expect(err.Error()).To(HavePrefix(`rule "bad" is malformed`))
	})
})
