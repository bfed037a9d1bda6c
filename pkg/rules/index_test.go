package rules_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"

	"github.com/openshift/managed-node-taint-operator/pkg/rules"
	"github.com/openshift/managed-node-taint-operator/pkg/taints"
)

func ids(effects []rules.Effects) []string {
	out := make([]string, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.RuleID)
	}
	return out
}

var _ = Describe("Index", func() {
	var (
		index *rules.Index
		t0    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		x     = corev1.Taint{Key: "x", Effect: corev1.TaintEffectNoSchedule}
		y     = corev1.Taint{Key: "y", Value: "1", Effect: corev1.TaintEffectNoExecute}
	)

	BeforeEach(func() {
		index = rules.NewIndex()
	})

	It("starts empty and unsynced", func() {
		Expect(index.Len()).To(Equal(0))
		Expect(index.Synced()).To(BeFalse())
		Expect(index.Lookup(map[string]string{"zone": "a"})).To(BeEmpty())
		index.MarkSynced()
		Expect(index.Synced()).To(BeTrue())
	})

	It("returns the effects of a rule matching one label pair", func() {
		changed, err := index.Put("rule1", rules.Rule{
			CreationTimestamp: t0,
			MatchLabels:       map[string]string{"zone": "a"},
			WantedTaints:      []corev1.Taint{x},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())

		got := index.Lookup(map[string]string{"zone": "a", "other": "label"})
		Expect(got).To(HaveLen(1))
		Expect(got[0].RuleID).To(Equal("rule1"))
		Expect(got[0].Wanted.Has(taints.KeyOf(x))).To(BeTrue())
		Expect(got[0].Unwanted.Len()).To(Equal(0))

		Expect(index.Lookup(map[string]string{"zone": "b"})).To(BeEmpty())
		Expect(index.Lookup(nil)).To(BeEmpty())
	})

	It("matches a rule when any one of its pairs is present", func() {
		_, err := index.Put("gpu", rules.Rule{MatchLabels: map[string]string{"gpu": "true", "type": "p3"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(index.Lookup(map[string]string{"type": "p3"}))).To(Equal([]string{"gpu"}))
	})

	It("returns a rule once even when several of its pairs match", func() {
		_, err := index.Put("gpu", rules.Rule{MatchLabels: map[string]string{"gpu": "true", "type": "p3"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(index.Lookup(map[string]string{"gpu": "true", "type": "p3"}))).To(Equal([]string{"gpu"}))
	})

	It("applies match-all rules to nodes without labels", func() {
		_, err := index.Put("all", rules.Rule{UnwantedTaints: []corev1.Taint{x}})
		Expect(err).NotTo(HaveOccurred())
		_, err = index.Put("zoned", rules.Rule{MatchLabels: map[string]string{"zone": "a"}})
		Expect(err).NotTo(HaveOccurred())

		Expect(ids(index.Lookup(nil))).To(Equal([]string{"all"}))
		Expect(ids(index.Lookup(map[string]string{"zone": "a"}))).To(ConsistOf("all", "zoned"))
	})

	It("does not treat an empty label on the node as the match-all pair", func() {
		_, err := index.Put("zoned", rules.Rule{MatchLabels: map[string]string{"zone": "a"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(index.Lookup(map[string]string{"": ""})).To(BeEmpty())
	})

	It("orders effects by creation timestamp, then rule ID", func() {
		for id, created := range map[string]time.Time{
			"c": t0,
			"b": t0.Add(time.Hour),
			"a": t0.Add(time.Hour),
			"d": t0.Add(-time.Hour),
		} {
			_, err := index.Put(id, rules.Rule{CreationTimestamp: created, MatchLabels: map[string]string{"zone": "a"}})
			Expect(err).NotTo(HaveOccurred())
		}
		for range 10 {
			Expect(ids(index.Lookup(map[string]string{"zone": "a"}))).To(Equal([]string{"d", "c", "a", "b"}))
		}
	})

	It("forgets the old pairs of an edited rule", func() {
		_, err := index.Put("rule1", rules.Rule{MatchLabels: map[string]string{"zone": "a"}, WantedTaints: []corev1.Taint{x}})
		Expect(err).NotTo(HaveOccurred())
		changed, err := index.Put("rule1", rules.Rule{MatchLabels: map[string]string{"zone": "b"}, WantedTaints: []corev1.Taint{x}})
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())

		Expect(index.Lookup(map[string]string{"zone": "a"})).To(BeEmpty())
		Expect(ids(index.Lookup(map[string]string{"zone": "b"}))).To(Equal([]string{"rule1"}))
		Expect(index.Len()).To(Equal(1))
	})

	It("reports an identical put as unchanged", func() {
		r := rules.Rule{CreationTimestamp: t0, MatchLabels: map[string]string{"zone": "a"}, WantedTaints: []corev1.Taint{x, y}}
		_, err := index.Put("rule1", r)
		Expect(err).NotTo(HaveOccurred())

		reordered := rules.Rule{CreationTimestamp: t0, MatchLabels: map[string]string{"zone": "a"}, WantedTaints: []corev1.Taint{y, x, y}}
		changed, err := index.Put("rule1", reordered)
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeFalse())

		changed, err = index.Put("rule1", rules.Rule{CreationTimestamp: t0, MatchLabels: map[string]string{"zone": "a"}, UnwantedTaints: []corev1.Taint{x, y}})
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())
	})

	It("keeps the previous version when a put is rejected", func() {
		_, err := index.Put("rule1", rules.Rule{MatchLabels: map[string]string{"zone": "a"}, WantedTaints: []corev1.Taint{x}})
		Expect(err).NotTo(HaveOccurred())

		changed, err := index.Put("rule1", rules.Rule{MatchLabels: map[string]string{"zone": "b"}, WantedTaints: []corev1.Taint{{Key: "x"}}})
		Expect(rules.IsMalformed(err)).To(BeTrue())
		Expect(changed).To(BeFalse())

		got := index.Lookup(map[string]string{"zone": "a"})
		Expect(ids(got)).To(Equal([]string{"rule1"}))
		Expect(got[0].Wanted.Has(taints.KeyOf(x))).To(BeTrue())
		Expect(index.Lookup(map[string]string{"zone": "b"})).To(BeEmpty())
	})

	It("removes every entry of a rule", func() {
		_, err := index.Put("gpu", rules.Rule{MatchLabels: map[string]string{"gpu": "true", "type": "p3"}})
		Expect(err).NotTo(HaveOccurred())
		_, err = index.Put("all", rules.Rule{})
		Expect(err).NotTo(HaveOccurred())

		Expect(index.Remove("gpu")).To(BeTrue())
		Expect(index.Remove("gpu")).To(BeFalse())
		Expect(ids(index.Lookup(map[string]string{"gpu": "true", "type": "p3"}))).To(Equal([]string{"all"}))

		Expect(index.Remove("all")).To(BeTrue())
		Expect(index.Lookup(nil)).To(BeEmpty())
		Expect(index.Len()).To(Equal(0))
	})

	It("never shows a rule under both its old and new labels", func() {
		_, err := index.Put("mover", rules.Rule{MatchLabels: map[string]string{"side": "left"}})
		Expect(err).NotTo(HaveOccurred())

		both := map[string]string{"side": "left", "other": "right"}
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				labels := map[string]string{"side": "left"}
				if i%2 == 1 {
					labels = map[string]string{"other": "right"}
				}
				_, err := index.Put("mover", rules.Rule{MatchLabels: labels})
				Expect(err).NotTo(HaveOccurred())
			}
		}()

		for i := 0; i < 1000; i++ {
			Expect(index.Lookup(both)).To(HaveLen(1), fmt.Sprintf("iteration %d", i))
		}
		close(stop)
		wg.Wait()
	})
})
