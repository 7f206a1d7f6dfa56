package core

import (
	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/primitives"
)

// condHolds evaluates a transition's optional guard, treating an empty
// Cond as always-true.
func condHolds(t *primitives.Transition, evaluator eval.Evaluator, ctx *primitives.EvalContext) (bool, error) {
	if t.Cond == "" {
		return true, nil
	}
	return evaluator.EvalBool(t.Cond, ctx)
}

// SelectEventlessTransitions returns the optimal, conflict-free set of
// eventless (no `event` attribute) transitions enabled in config, in
// document order — spec.md §4.7 step 1, tried before any event is taken
// from the queues.
func SelectEventlessTransitions(doc *primitives.Document, config Configuration, evaluator eval.Evaluator, ctx *primitives.EvalContext) ([]*primitives.Transition, error) {
	return selectTransitions(doc, config, "", true, evaluator, ctx)
}

// SelectTransitions returns the optimal, conflict-free set of transitions
// enabled by the given event name in config — spec.md §4.7 step 2.
func SelectTransitions(doc *primitives.Document, config Configuration, eventName string, evaluator eval.Evaluator, ctx *primitives.EvalContext) ([]*primitives.Transition, error) {
	return selectTransitions(doc, config, eventName, false, evaluator, ctx)
}

func selectTransitions(doc *primitives.Document, config Configuration, eventName string, eventless bool, evaluator eval.Evaluator, ctx *primitives.EvalContext) ([]*primitives.Transition, error) {
	var enabled []*primitives.Transition
	for _, atom := range SortedAtoms(doc, config) {
		chain := doc.AncestorsOf(atom) // root-first; walk innermost-out
		for i := len(chain) - 1; i >= 0; i-- {
			s := doc.MustState(chain[i])
			found := false
			for _, t := range s.Transitions {
				if eventless {
					if !t.IsEventless() {
						continue
					}
				} else {
					if t.IsEventless() || !t.MatchesEvent(eventName) {
						continue
					}
				}
				ok, err := condHolds(t, evaluator, ctx)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				enabled = append(enabled, t)
				found = true
				break
			}
			if found {
				break
			}
		}
	}
	return removeConflicting(doc, config, enabled), nil
}

// transitionDomain is the "transition domain" of the SCXML algorithm: the
// compound/parallel state whose descendants are exited when t fires. A
// targetless transition has no domain (NoState) and never exits anything.
func transitionDomain(doc *primitives.Document, t *primitives.Transition) primitives.StateIndex {
	if len(t.Targets) == 0 {
		return primitives.NoState
	}
	src := doc.MustState(t.Source)
	if t.Kind == primitives.Internal && (src.Kind == primitives.KindCompound || src.Kind == primitives.KindParallel) {
		allDescendants := true
		for _, tgt := range t.Targets {
			if !doc.IsDescendant(tgt, t.Source) {
				allDescendants = false
				break
			}
		}
		if allDescendants {
			return t.Source
		}
	}
	lcca := t.Targets[0]
	for _, tgt := range t.Targets[1:] {
		lcca = doc.LCCA(lcca, tgt)
	}
	return doc.LCCA(t.Source, lcca)
}

// exitSet returns the active states inside t's transition domain, i.e. the
// states that would be exited if t fires: the atomic states in config that
// lie under the domain plus each of their ancestors strictly below it.
func exitSet(doc *primitives.Document, config Configuration, t *primitives.Transition) map[primitives.StateIndex]struct{} {
	domain := transitionDomain(doc, t)
	out := make(map[primitives.StateIndex]struct{})
	if domain == primitives.NoState {
		return out
	}
	for atom := range config {
		if atom == domain || doc.IsDescendant(atom, domain) {
			out[atom] = struct{}{}
			for _, anc := range doc.AncestorsOf(atom) {
				if anc != domain && doc.IsDescendant(anc, domain) {
					out[anc] = struct{}{}
				}
			}
		}
	}
	return out
}

func intersects(a, b map[primitives.StateIndex]struct{}) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if _, ok := big[k]; ok {
			return true
		}
	}
	return false
}

// removeConflicting implements the standard SCXML conflict-resolution
// pass (spec.md §4.7 step 3): among transitions with overlapping exit
// sets, a transition sourced from a descendant state preempts one sourced
// from an ancestor; between transitions in neither relation, the one
// considered first (document/config order, already encoded in enabled's
// order) wins and the later one is dropped.
func removeConflicting(doc *primitives.Document, config Configuration, enabled []*primitives.Transition) []*primitives.Transition {
	var filtered []*primitives.Transition
	for _, t1 := range enabled {
		exit1 := exitSet(doc, config, t1)
		preempted := false
		var toRemove []int
		for i, t2 := range filtered {
			exit2 := exitSet(doc, config, t2)
			if !intersects(exit1, exit2) {
				continue
			}
			if doc.IsDescendant(t1.Source, t2.Source) && t1.Source != t2.Source {
				toRemove = append(toRemove, i)
			} else {
				preempted = true
				break
			}
		}
		if preempted {
			continue
		}
		if len(toRemove) > 0 {
			removeSet := make(map[int]struct{}, len(toRemove))
			for _, i := range toRemove {
				removeSet[i] = struct{}{}
			}
			next := filtered[:0]
			for i, t := range filtered {
				if _, gone := removeSet[i]; !gone {
					next = append(next, t)
				}
			}
			filtered = next
		}
		filtered = append(filtered, t1)
	}
	return filtered
}
