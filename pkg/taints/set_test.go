package taints_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"

	"github.com/openshift/managed-node-taint-operator/pkg/taints"
)

var _ = Describe("Set", func() {
	var (
		a = corev1.Taint{Key: "a", Effect: corev1.TaintEffectNoSchedule}
		b = corev1.Taint{Key: "b", Value: "1", Effect: corev1.TaintEffectNoExecute}
		c = corev1.Taint{Key: "c", Effect: corev1.TaintEffectPreferNoSchedule}
	)

	It("collapses duplicates", func() {
		Expect(taints.NewSet(a, a, b).Len()).To(Equal(2))
	})

	It("lists members ordered by taint key", func() {
		Expect(taints.List(taints.NewSet(c, a, b))).To(Equal([]corev1.Taint{a, b, c}))
	})

	It("lists an empty set as empty", func() {
		Expect(taints.List(taints.NewSet())).To(BeEmpty())
	})

	Context("Merge", func() {
		It("keeps the order of retained taints and appends new ones", func() {
			Expect(taints.Merge([]corev1.Taint{c, a}, taints.NewSet(a, b, c))).To(Equal([]corev1.Taint{c, a, b}))
		})

		It("drops taints missing from the desired set", func() {
			Expect(taints.Merge([]corev1.Taint{c, b, a}, taints.NewSet(a, c))).To(Equal([]corev1.Taint{c, a}))
		})

		It("drops duplicated current taints", func() {
			Expect(taints.Merge([]corev1.Taint{a, a}, taints.NewSet(a))).To(Equal([]corev1.Taint{a}))
		})

		It("returns an empty list for an empty desired set", func() {
			Expect(taints.Merge([]corev1.Taint{a}, taints.NewSet())).To(BeEmpty())
		})
	})
})
