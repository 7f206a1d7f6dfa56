// Package core implements the interpretation engine proper: configuration
// and history bookkeeping (C4/C5), the event queues and delayed-send
// scheduler (C6), the transition selector (C10), the microstep executor
// (C11), and the macrostep driver (C12) — spec.md §4.3–§4.9.
//
// The engine core is a pure function of (Document, Configuration, Event) to
// a new Configuration, aside from the ExprEvaluator's effects on the
// datamodel, per spec.md §9's design note. It has no knowledge of hosting,
// serialization, or transport; the host package owns those concerns.
package core

import (
	"sort"

	"github.com/comalice/scxml/internal/primitives"
)

// Configuration is the set of currently active atomic states. Ancestors are
// implicit and computed on demand via Document.AncestorsOf, per spec.md §3
// ("Configuration stores only the set of active atomic states").
type Configuration map[primitives.StateIndex]struct{}

// NewConfiguration builds a Configuration from a slice of atomic states.
func NewConfiguration(atoms ...primitives.StateIndex) Configuration {
	c := make(Configuration, len(atoms))
	for _, a := range atoms {
		c[a] = struct{}{}
	}
	return c
}

// Clone returns an independent copy.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	for k := range c {
		out[k] = struct{}{}
	}
	return out
}

// Add marks idx active.
func (c Configuration) Add(idx primitives.StateIndex) { c[idx] = struct{}{} }

// Remove marks idx inactive.
func (c Configuration) Remove(idx primitives.StateIndex) { delete(c, idx) }

// Has reports whether idx is one of the active atomic states.
func (c Configuration) Has(idx primitives.StateIndex) bool {
	_, ok := c[idx]
	return ok
}

// WithAncestors expands the configuration to include every active atomic
// state's ancestors (spec.md §4.3), as a flat set.
func WithAncestors(doc *primitives.Document, c Configuration) map[primitives.StateIndex]struct{} {
	out := make(map[primitives.StateIndex]struct{}, len(c)*2)
	for leaf := range c {
		for _, anc := range doc.AncestorsOf(leaf) {
			out[anc] = struct{}{}
		}
	}
	return out
}

// SortedAtoms returns the active atomic states ordered by document order,
// the deterministic iteration order required throughout the selector and
// microstep executor (spec.md §4.7 step 1, §5 ordering guarantees).
func SortedAtoms(doc *primitives.Document, c Configuration) []primitives.StateIndex {
	out := make([]primitives.StateIndex, 0, len(c))
	for idx := range c {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool {
		return doc.MustState(out[i]).DocumentOrder < doc.MustState(out[j]).DocumentOrder
	})
	return out
}

// IsInFinalOfRoot reports whether any active atomic state is a <final>
// child of the document root, the terminal condition of spec.md §4.9.
func IsInFinalOfRoot(doc *primitives.Document, c Configuration) (primitives.StateIndex, bool) {
	for leaf := range c {
		s := doc.MustState(leaf)
		if s.Kind == primitives.KindFinal && s.Parent == doc.Root {
			return leaf, true
		}
	}
	return primitives.NoState, false
}

// ValidateInvariant checks the two configuration invariants from spec.md
// §8: every ancestor of an active state is itself implicitly active, and
// every parallel ancestor present has exactly one active descendant per
// region. Intended for tests, not the hot path.
func ValidateInvariant(doc *primitives.Document, c Configuration) []string {
	var problems []string
	expanded := WithAncestors(doc, c)
	for _, idx := range sortedKeys(expanded) {
		s := doc.MustState(idx)
		if s.Kind != primitives.KindParallel {
			continue
		}
		for _, region := range s.Children {
			count := 0
			for leaf := range c {
				if leaf == region || doc.IsDescendant(leaf, region) {
					count++
				}
			}
			if count != 1 {
				problems = append(problems, s.ID)
			}
		}
	}
	return problems
}

func sortedKeys(m map[primitives.StateIndex]struct{}) []primitives.StateIndex {
	out := make([]primitives.StateIndex, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
