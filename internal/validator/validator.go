// Package validator implements structural validation and cross-reference
// resolution (C3, spec.md §4.2): turning the parser's raw ID references
// (Transition.TargetIDs, State.InitialIDs, Document.InitialID) into arena
// StateIndex values, computing each state's ancestor chain once, and
// flagging structural defects a conforming interpreter must reject or
// warn about.
package validator

import (
	"fmt"
	"sort"

	"github.com/comalice/scxml/internal/primitives"
)

// ValidationError is a fatal structural defect; Validate returns the
// first one it encounters. Non-fatal issues are appended to
// Document.Warnings instead.
type ValidationError struct {
	Pos primitives.Position
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scxml: invalid document at %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Validate resolves every raw ID reference in doc, computes ancestor
// chains, sets doc.Validated, and returns a fatal error for any reference
// to an undeclared state ID. Unreachable states and other non-fatal
// issues are recorded in doc.Warnings instead of failing the build.
func Validate(doc *primitives.Document) error {
	if err := resolveInitial(doc); err != nil {
		return err
	}
	if err := resolveTransitionTargets(doc); err != nil {
		return err
	}
	if err := resolveHistoryDefaults(doc); err != nil {
		return err
	}
	computeAncestors(doc)
	checkParallelChildren(doc)
	checkHistoryPlacement(doc)
	checkReachability(doc)
	doc.Validated = true
	return nil
}

func lookup(doc *primitives.Document, id string, pos primitives.Position) (primitives.StateIndex, error) {
	idx, ok := doc.ByID[id]
	if !ok {
		return primitives.NoState, &ValidationError{Pos: pos, Msg: fmt.Sprintf("reference to undeclared state id %q", id)}
	}
	return idx, nil
}

func resolveInitial(doc *primitives.Document) error {
	root := doc.MustState(doc.Root)
	if len(doc.InitialIDs) > 0 {
		for _, id := range doc.InitialIDs {
			idx, err := lookup(doc, id, root.Position)
			if err != nil {
				return err
			}
			doc.InitialTargets = append(doc.InitialTargets, idx)
		}
		doc.Initial = doc.InitialTargets[0]
	} else if len(root.Children) > 0 {
		doc.Initial = firstNonHistoryChild(doc, root)
		doc.InitialTargets = []primitives.StateIndex{doc.Initial}
	}

	for _, s := range doc.States {
		if len(s.InitialIDs) == 0 {
			if s.Kind == primitives.KindCompound || s.Kind == primitives.KindParallel {
				s.Initial = firstNonHistoryChild(doc, s)
			}
			continue
		}
		idx, err := lookup(doc, s.InitialIDs[0], s.Position)
		if err != nil {
			return err
		}
		s.Initial = idx
	}
	return nil
}

func firstNonHistoryChild(doc *primitives.Document, s *primitives.State) primitives.StateIndex {
	for _, c := range s.Children {
		if !doc.MustState(c).Kind.IsHistory() {
			return c
		}
	}
	return primitives.NoState
}

func resolveTransitionTargets(doc *primitives.Document) error {
	for _, s := range doc.States {
		for _, t := range s.Transitions {
			for _, id := range t.TargetIDs {
				idx, err := lookup(doc, id, t.Position)
				if err != nil {
					return err
				}
				t.Targets = append(t.Targets, idx)
			}
		}
	}
	return nil
}

func resolveHistoryDefaults(doc *primitives.Document) error {
	for _, s := range doc.States {
		if !s.Kind.IsHistory() || s.HistoryDefault == nil {
			continue
		}
		for _, id := range s.HistoryDefault.TargetIDs {
			idx, err := lookup(doc, id, s.HistoryDefault.Position)
			if err != nil {
				return err
			}
			s.HistoryDefault.Targets = append(s.HistoryDefault.Targets, idx)
		}
	}
	return nil
}

// computeAncestors fills doc.Ancestors with the self-inclusive, root-first
// chain for every state, so AncestorsOf/LCCA never need to walk Parent
// pointers live during interpretation.
func computeAncestors(doc *primitives.Document) {
	doc.Ancestors = make(map[primitives.StateIndex][]primitives.StateIndex, len(doc.States))
	for _, s := range doc.States {
		var chain []primitives.StateIndex
		for cur := s.Index; cur != primitives.NoState; cur = doc.MustState(cur).Parent {
			chain = append(chain, cur)
		}
		for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
			chain[i], chain[j] = chain[j], chain[i]
		}
		doc.Ancestors[s.Index] = chain
	}
}

// checkParallelChildren warns when a <parallel> state has fewer than two
// non-history children, which makes the parallel meaningless (spec.md
// §4.2 structural note).
func checkParallelChildren(doc *primitives.Document) {
	for _, s := range doc.States {
		if s.Kind != primitives.KindParallel {
			continue
		}
		count := 0
		for _, c := range s.Children {
			if !doc.MustState(c).Kind.IsHistory() {
				count++
			}
		}
		if count < 2 {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("parallel state %q has fewer than two regions", s.ID))
		}
	}
}

// checkHistoryPlacement warns about a history pseudostate with a default
// transition targeting outside its own parent's subtree, and about a
// history state placed under a parent with no other children to restore.
func checkHistoryPlacement(doc *primitives.Document) {
	for _, s := range doc.States {
		if !s.Kind.IsHistory() {
			continue
		}
		parent := doc.MustState(s.Parent)
		others := 0
		for _, c := range parent.Children {
			if !doc.MustState(c).Kind.IsHistory() {
				others++
			}
		}
		if others == 0 {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("history state %q has no sibling states to record", s.ID))
		}
		if s.HistoryDefault != nil {
			for _, tgt := range s.HistoryDefault.Targets {
				if !doc.IsDescendant(tgt, s.Parent) {
					doc.Warnings = append(doc.Warnings, fmt.Sprintf("history state %q default target escapes its parent's subtree", s.ID))
				}
			}
		}
	}
}

// checkReachability warns about states no transition (or initial chain)
// can ever enter: every state other than the root and its initial
// descent path must appear as some transition's target or as a default
// entry, directly or transitively.
func checkReachability(doc *primitives.Document) {
	reachable := make(map[primitives.StateIndex]struct{})
	var mark func(idx primitives.StateIndex)
	mark = func(idx primitives.StateIndex) {
		if idx == primitives.NoState {
			return
		}
		if _, ok := reachable[idx]; ok {
			return
		}
		reachable[idx] = struct{}{}
		s := doc.MustState(idx)
		mark(s.Initial)
		for _, c := range s.Children {
			if doc.MustState(c).Kind.IsHistory() {
				mark(c)
			}
		}
	}
	mark(doc.Root)
	if len(doc.InitialTargets) > 0 {
		for _, tgt := range doc.InitialTargets {
			mark(tgt)
		}
	} else {
		mark(doc.Initial)
	}
	for _, s := range doc.States {
		for _, t := range s.Transitions {
			for _, tgt := range t.Targets {
				mark(tgt)
			}
		}
		if s.HistoryDefault != nil {
			for _, tgt := range s.HistoryDefault.Targets {
				mark(tgt)
			}
		}
	}

	var unreachable []string
	for _, s := range doc.States {
		if s.Index == doc.Root {
			continue
		}
		if _, ok := reachable[s.Index]; !ok {
			unreachable = append(unreachable, s.ID)
		}
	}
	sort.Strings(unreachable)
	for _, id := range unreachable {
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("state %q is unreachable", id))
	}
}
