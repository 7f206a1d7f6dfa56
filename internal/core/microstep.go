package core

import (
	"sort"

	"github.com/comalice/scxml/internal/primitives"
)

// ActionRunner executes one atomic block of executable content (spec.md
// §4.5/§4.6): an <onentry>/<onexit> block or a transition's action list.
// Implemented by internal/content; kept as an interface here so core has
// no dependency on content's concrete element handlers.
type ActionRunner interface {
	Run(actions []primitives.ExecutableContent, ctx *primitives.EvalContext, queues *Queues) error

	// StartInvoke launches one <invoke> child of a state just entered.
	StartInvoke(inv *primitives.Invoke, ctx *primitives.EvalContext, queues *Queues) error

	// CancelInvoke tears down a running invocation as its owning state is
	// exited, before that state's onexit handlers run.
	CancelInvoke(inv *primitives.Invoke, ctx *primitives.EvalContext) error
}

// DoneDataResolver is an optional capability an ActionRunner may implement
// to compute a <final>'s <donedata> payload for the done.state.<parent>
// event. If the runner doesn't implement it, done.state events carry nil
// data.
type DoneDataResolver interface {
	ResolveDoneData(final *primitives.State, ctx *primitives.EvalContext) (any, error)
}

// ApplyMicrostep exits the states computed from transitions' transition
// domains, runs exit handlers then transition actions then entry handlers
// in the standard order (spec.md §4.6), mutating config and queues in
// place. hist records history before states are removed so later re-entry
// of a history pseudostate sees the right configuration.
func ApplyMicrostep(doc *primitives.Document, config Configuration, hist *HistoryStore, transitions []*primitives.Transition, runner ActionRunner, ctx *primitives.EvalContext, queues *Queues) error {
	exited := computeExitStates(doc, config, transitions)

	for _, s := range exited {
		st := doc.MustState(s)
		for _, c := range st.Children {
			if doc.MustState(c).Kind.IsHistory() {
				hist.RecordExit(doc, s, config)
				break
			}
		}
	}

	for _, s := range exited {
		st := doc.MustState(s)
		for _, inv := range st.Invokes {
			if err := runner.CancelInvoke(inv, ctx); err != nil {
				return err
			}
		}
		for _, block := range st.OnExit {
			if err := runner.Run(block, ctx, queues); err != nil {
				return err
			}
		}
		config.Remove(s)
	}

	for _, t := range transitions {
		if err := runner.Run(t.Actions, ctx, queues); err != nil {
			return err
		}
	}

	entered := computeEntrySet(doc, transitions, hist)
	var enteredFinals []primitives.StateIndex
	for _, s := range entered {
		st := doc.MustState(s)
		if doc.Binding == primitives.BindingLate {
			if err := bindDataElements(st, ctx.Datamodel, ctx); err != nil {
				return err
			}
		}
		if st.IsAtomic() {
			config.Add(s)
		}
		for _, block := range st.OnEntry {
			if err := runner.Run(block, ctx, queues); err != nil {
				return err
			}
		}
		for _, inv := range st.Invokes {
			if err := runner.StartInvoke(inv, ctx, queues); err != nil {
				return err
			}
		}
		if st.Kind == primitives.KindFinal {
			enteredFinals = append(enteredFinals, s)
		}
	}

	for _, f := range enteredFinals {
		st := doc.MustState(f)
		if st.Parent == primitives.NoState || st.Parent == doc.Root {
			continue
		}
		var data any
		if resolver, ok := runner.(DoneDataResolver); ok {
			d, err := resolver.ResolveDoneData(st, ctx)
			if err != nil {
				return err
			}
			data = d
		}
		queues.PushInternal(primitives.NewInternalEvent("done.state."+doc.MustState(st.Parent).ID, data))
	}
	for _, ev := range parallelCompletionEvents(doc, config, enteredFinals) {
		queues.PushInternal(ev)
	}

	return nil
}

// computeExitStates returns the active states (atomic states and their
// compound/parallel ancestors) that lie in the union of the firing
// transitions' domains, ordered deepest-first (children exit before their
// ancestors).
func computeExitStates(doc *primitives.Document, config Configuration, transitions []*primitives.Transition) []primitives.StateIndex {
	set := make(map[primitives.StateIndex]struct{})
	for _, t := range transitions {
		for s := range exitSet(doc, config, t) {
			set[s] = struct{}{}
		}
	}
	out := make([]primitives.StateIndex, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := doc.MustState(out[i]), doc.MustState(out[j])
		if si.Depth != sj.Depth {
			return si.Depth > sj.Depth
		}
		return si.DocumentOrder > sj.DocumentOrder
	})
	return out
}

// computeEntrySet returns the states to enter for the firing transitions,
// expanded through default-initial and history resolution, ordered
// ancestors-before-descendants.
func computeEntrySet(doc *primitives.Document, transitions []*primitives.Transition, hist *HistoryStore) []primitives.StateIndex {
	set := make(map[primitives.StateIndex]struct{})
	var order []primitives.StateIndex
	add := func(idx primitives.StateIndex) {
		if _, ok := set[idx]; ok {
			return
		}
		set[idx] = struct{}{}
		order = append(order, idx)
	}

	var addOne func(target, domain primitives.StateIndex)
	addOne = func(target, domain primitives.StateIndex) {
		chain := doc.AncestorsOf(target) // root-first, self-inclusive
		started := domain == primitives.NoState
		for _, a := range chain {
			if !started {
				if a == domain {
					started = true
				}
				continue
			}
			add(a)
			// A parallel ancestor on the path to target must enter every
			// region, not just the one containing target: sibling regions
			// get their own default-initial descendants (spec.md §4.3,
			// the W3C "parallel entry" rule).
			if a == target {
				continue
			}
			as := doc.MustState(a)
			if as.Kind == primitives.KindParallel {
				for _, c := range as.Children {
					if doc.MustState(c).Kind.IsHistory() || doc.IsDescendant(target, c) {
						continue
					}
					addOne(c, a)
				}
			}
		}
		st := doc.MustState(target)
		switch st.Kind {
		case primitives.KindHistoryShallow, primitives.KindHistoryDeep:
			if rec, ok := hist.Restore(target); ok {
				for _, leaf := range rec {
					addOne(leaf, st.Parent)
				}
			} else if st.HistoryDefault != nil {
				for _, tgt := range st.HistoryDefault.Targets {
					addOne(tgt, st.Parent)
				}
			}
		case primitives.KindCompound:
			if st.Initial != primitives.NoState {
				addOne(st.Initial, target)
			}
		case primitives.KindParallel:
			for _, c := range st.Children {
				if doc.MustState(c).Kind.IsHistory() {
					continue
				}
				addOne(c, target)
			}
		}
	}

	for _, t := range transitions {
		domain := transitionDomain(doc, t)
		for _, tgt := range t.Targets {
			addOne(tgt, domain)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		si, sj := doc.MustState(order[i]), doc.MustState(order[j])
		if si.Depth != sj.Depth {
			return si.Depth < sj.Depth
		}
		return si.DocumentOrder < sj.DocumentOrder
	})
	return order
}

// InitialEntrySet computes the entry set for starting a fresh instance at
// doc.InitialTargets (or doc.Initial alone, for documents/tests that only
// set the single-target convenience field), for use by the host's
// Initialize step (spec.md §4.3). A root `initial` naming more than one
// leaf enters a <parallel>'s regions directly, per spec.md §8 scenario 2.
func InitialEntrySet(doc *primitives.Document, hist *HistoryStore) []primitives.StateIndex {
	targets := doc.InitialTargets
	if len(targets) == 0 {
		targets = []primitives.StateIndex{doc.Initial}
	}
	synthetic := &primitives.Transition{
		Source:  doc.Root,
		Targets: targets,
	}
	return computeEntrySet(doc, []*primitives.Transition{synthetic}, hist)
}

// activeChild returns the child of parent that is itself active or an
// ancestor of an active leaf, skipping history pseudostates.
func activeChild(doc *primitives.Document, config Configuration, parent primitives.StateIndex) (primitives.StateIndex, bool) {
	st := doc.MustState(parent)
	for _, c := range st.Children {
		if doc.MustState(c).Kind.IsHistory() {
			continue
		}
		if config.Has(c) {
			return c, true
		}
		for leaf := range config {
			if doc.IsDescendant(leaf, c) {
				return c, true
			}
		}
	}
	return primitives.NoState, false
}

// isInFinalState reports whether idx's subtree has, under the current
// configuration, reached completion: a <final> leaf is active, a compound
// state's active child is itself in final state, or (for parallel) every
// region is in final state.
func isInFinalState(doc *primitives.Document, config Configuration, idx primitives.StateIndex) bool {
	st := doc.MustState(idx)
	switch st.Kind {
	case primitives.KindFinal:
		return config.Has(idx)
	case primitives.KindParallel:
		for _, c := range st.Children {
			if doc.MustState(c).Kind.IsHistory() {
				continue
			}
			if !isInFinalState(doc, config, c) {
				return false
			}
		}
		return true
	case primitives.KindCompound:
		child, ok := activeChild(doc, config, idx)
		if !ok {
			return false
		}
		return isInFinalState(doc, config, child)
	default:
		return false
	}
}

// parallelCompletionEvents walks up from each newly-entered <final> state
// and raises done.state.<id> for every parallel (or compound) ancestor
// that has just become fully completed, per spec.md §4.3's parallel
// completion rule.
func parallelCompletionEvents(doc *primitives.Document, config Configuration, enteredFinals []primitives.StateIndex) []primitives.Event {
	visited := make(map[primitives.StateIndex]struct{})
	var events []primitives.Event
	for _, f := range enteredFinals {
		parent := doc.MustState(f).Parent
		if parent != primitives.NoState && parent != doc.Root {
			parent = doc.MustState(parent).Parent // the direct-parent event is raised in ApplyMicrostep already
		}
		for parent != primitives.NoState && parent != doc.Root {
			if _, seen := visited[parent]; seen {
				break
			}
			visited[parent] = struct{}{}
			if !isInFinalState(doc, config, parent) {
				break
			}
			events = append(events, primitives.NewInternalEvent("done.state."+doc.MustState(parent).ID, nil))
			parent = doc.MustState(parent).Parent
		}
	}
	return events
}
