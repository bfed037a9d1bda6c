package taints_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/openshift/managed-node-taint-operator/pkg/taints"
)

var _ = Describe("Key", func() {
	added := metav1.NewTime(time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.FixedZone("CET", 3600)))

	DescribeTable("round trips through Decode",
		func(t corev1.Taint) {
			got, err := taints.Decode(taints.KeyOf(t))
			Expect(err).NotTo(HaveOccurred())
			Expect(equality.Semantic.DeepEqual(got, t)).To(BeTrue(), "got %v, want %v", got, t)
		},
		Entry("key and effect", corev1.Taint{Key: "x", Effect: corev1.TaintEffectNoSchedule}),
		Entry("with value", corev1.Taint{Key: "example.com/x", Value: "y", Effect: corev1.TaintEffectNoExecute}),
		Entry("with timeAdded", corev1.Taint{Key: "x", Effect: corev1.TaintEffectNoExecute, TimeAdded: &added}),
		Entry("unknown effect", corev1.Taint{Key: "x", Effect: "Sometimes"}),
		Entry("zero taint", corev1.Taint{}),
	)

	It("does not depend on the field order of the source document", func() {
		var a, b corev1.Taint
		Expect(yaml.Unmarshal([]byte("key: x\nvalue: v\neffect: NoSchedule\n"), &a)).To(Succeed())
		Expect(yaml.Unmarshal([]byte("effect: NoSchedule\nvalue: v\nkey: x\n"), &b)).To(Succeed())
		Expect(taints.KeyOf(a)).To(Equal(taints.KeyOf(b)))
	})

	It("is stable across calls", func() {
		t := corev1.Taint{Key: "x", Value: "v", Effect: corev1.TaintEffectNoSchedule, TimeAdded: &added}
		Expect(taints.KeyOf(t)).To(Equal(taints.KeyOf(*t.DeepCopy())))
	})

	It("normalizes the zone of timeAdded", func() {
		utc := metav1.NewTime(added.UTC())
		Expect(taints.KeyOf(corev1.Taint{Key: "x", TimeAdded: &added})).
			To(Equal(taints.KeyOf(corev1.Taint{Key: "x", TimeAdded: &utc})))
	})

	DescribeTable("distinguishes taints that differ in any field",
		func(a, b corev1.Taint) {
			Expect(taints.KeyOf(a)).NotTo(Equal(taints.KeyOf(b)))
		},
		Entry("key", corev1.Taint{Key: "x"}, corev1.Taint{Key: "y"}),
		Entry("value", corev1.Taint{Key: "x", Value: "1"}, corev1.Taint{Key: "x", Value: "2"}),
		Entry("effect", corev1.Taint{Key: "x", Effect: corev1.TaintEffectNoSchedule}, corev1.Taint{Key: "x", Effect: corev1.TaintEffectNoExecute}),
		Entry("timeAdded", corev1.Taint{Key: "x"}, corev1.Taint{Key: "x", TimeAdded: &added}),
		Entry("separator in value", corev1.Taint{Key: "a", Value: "b,c"}, corev1.Taint{Key: "a,b", Value: "c"}),
	)

	It("encodes a readable document", func() {
		k := taints.KeyOf(corev1.Taint{Key: "x", Effect: corev1.TaintEffectNoSchedule})
		Expect(json.Valid([]byte(k))).To(BeTrue())
		Expect(string(k)).To(Equal(`{"key":"x","value":"","effect":"NoSchedule"}`))
	})

	It("rejects garbage", func() {
		_, err := taints.Decode("not a taint")
		Expect(err).To(HaveOccurred())
	})
})
