package rules

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/openshift/managed-node-taint-operator/pkg/taints"
)

// labelPair is a single label key/value a rule selects on.
type labelPair struct {
	key, value string
}

// matchAll is where rules with empty matchLabels are indexed. Empty label keys
// are rejected by Validate, so no real pair collides with it.
var matchAll = labelPair{}

// Effects are what one rule does to every node it matches. The sets are shared
// with the index and must not be modified.
type Effects struct {
	RuleID   string
	Wanted   taints.Set
	Unwanted taints.Set
}

type entry struct {
	effects Effects
	created time.Time
	pairs   []labelPair
	hash    uint64
}

// Index maps label pairs to the effects of the rules selecting on them.
//
// Lookup returns effects ordered by rule creation timestamp, then rule ID.
// Writers replace a rule's entries under a single lock, so readers never see a
// rule half way between two versions of its matchLabels.
type Index struct {
	mu     sync.RWMutex
	byPair map[labelPair]sets.Set[string]
	byRule map[string]*entry
	synced atomic.Bool
}

// NewIndex returns an empty, unsynced index.
func NewIndex() *Index {
	return &Index{
		byPair: map[labelPair]sets.Set[string]{},
		byRule: map[string]*entry{},
	}
}

// Put indexes rule under id, replacing any entries a previous version of the
// rule left behind. A rule failing validation is rejected with a
// *MalformedRuleError and the index is left as it was. changed is false when
// the rule is already indexed with identical content.
func (i *Index) Put(id string, rule Rule) (changed bool, err error) {
	if err := rule.Validate(); err != nil {
		return false, &MalformedRuleError{RuleID: id, Err: err}
	}
	e := newEntry(id, rule)

	i.mu.Lock()
	defer i.mu.Unlock()
	if old, ok := i.byRule[id]; ok {
		if old.hash == e.hash {
			return false, nil
		}
		i.unlink(id, old)
	}
	i.byRule[id] = e
	for _, p := range e.pairs {
		if _, ok := i.byPair[p]; !ok {
			i.byPair[p] = sets.New[string]()
		}
		i.byPair[p].Insert(id)
	}
	return true, nil
}

// Remove drops every entry contributed by id and reports whether there were any.
func (i *Index) Remove(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	old, ok := i.byRule[id]
	if !ok {
		return false
	}
	i.unlink(id, old)
	delete(i.byRule, id)
	return true
}

func (i *Index) unlink(id string, e *entry) {
	for _, p := range e.pairs {
		i.byPair[p].Delete(id)
		if i.byPair[p].Len() == 0 {
			delete(i.byPair, p)
		}
	}
}

// Lookup returns the effects of every rule matching labels, one per rule.
func (i *Index) Lookup(labels map[string]string) []Effects {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ids := sets.New[string]()
	ids.Insert(i.byPair[matchAll].UnsortedList()...)
	for k, v := range labels {
		ids.Insert(i.byPair[labelPair{key: k, value: v}].UnsortedList()...)
	}
	entries := lo.Map(ids.UnsortedList(), func(id string, _ int) *entry { return i.byRule[id] })
	slices.SortFunc(entries, func(a, b *entry) int {
		if c := a.created.Compare(b.created); c != 0 {
			return c
		}
		return strings.Compare(a.effects.RuleID, b.effects.RuleID)
	})
	return lo.Map(entries, func(e *entry, _ int) Effects { return e.effects })
}

// Len returns the number of indexed rules.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byRule)
}

// Synced reports whether the index has been loaded from a complete list of rules.
func (i *Index) Synced() bool {
	return i.synced.Load()
}

// MarkSynced records that the index holds every rule from a complete list.
func (i *Index) MarkSynced() {
	i.synced.Store(true)
}

func newEntry(id string, rule Rule) *entry {
	e := &entry{
		effects: Effects{
			RuleID:   id,
			Wanted:   taints.NewSet(rule.WantedTaints...),
			Unwanted: taints.NewSet(rule.UnwantedTaints...),
		},
		created: rule.CreationTimestamp,
	}
	if len(rule.MatchLabels) == 0 {
		e.pairs = []labelPair{matchAll}
	} else {
		e.pairs = lo.MapToSlice(rule.MatchLabels, func(k, v string) labelPair { return labelPair{key: k, value: v} })
	}
	e.hash = lo.Must(hashstructure.Hash(struct {
		Created     int64
		MatchLabels map[string]string
		Wanted      []taints.Key
		Unwanted    []taints.Key
	}{
		Created:     rule.CreationTimestamp.UnixNano(),
		MatchLabels: rule.MatchLabels,
		Wanted:      sets.List(e.effects.Wanted),
		Unwanted:    sets.List(e.effects.Unwanted),
	}, hashstructure.FormatV2, nil))
	return e
}
