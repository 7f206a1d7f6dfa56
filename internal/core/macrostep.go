package core

import (
	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/primitives"
)

// Engine bundles everything a host needs to drive one instance through the
// interpretation algorithm: the document, live configuration, history
// store, queues, and the pluggable evaluator/action runner traits
// (spec.md §4.3–§4.9, C4–C12).
type Engine struct {
	Doc       *primitives.Document
	Config    Configuration
	History   *HistoryStore
	Queues    *Queues
	Evaluator eval.Evaluator
	Runner    ActionRunner
}

// NewEngine wires a fresh engine around doc, with an empty configuration;
// call Initialize before processing events.
func NewEngine(doc *primitives.Document, evaluator eval.Evaluator, runner ActionRunner) *Engine {
	return &Engine{
		Doc:       doc,
		Config:    NewConfiguration(),
		History:   NewHistoryStore(),
		Queues:    NewQueues(),
		Evaluator: evaluator,
		Runner:    runner,
	}
}

func (e *Engine) evalContext(sessionID string, ev primitives.Event) *primitives.EvalContext {
	return &primitives.EvalContext{
		Doc:       e.Doc,
		Event:     ev,
		SessionID: sessionID,
		Evaluator: e.Evaluator,
		Config: func() map[primitives.StateIndex]struct{} {
			return e.Config
		},
	}
}

// Initialize enters the document's initial configuration and stabilizes
// it (eventless transitions and any onentry-raised internal events),
// matching the instance-startup step of spec.md §4.3.
//
// Every <data> element in the document is declared up front regardless of
// binding mode (spec.md §4.3). Under early binding all of them are
// initialized immediately; under late binding each state's own data stays
// pending (observed as undefined) until that state is actually entered.
func (e *Engine) Initialize(dm *primitives.Datamodel, sessionID string) error {
	ctx := e.evalContext(sessionID, primitives.Event{})
	ctx.Datamodel = dm

	for _, s := range e.Doc.States {
		for _, de := range s.DataElements {
			dm.Declare(de.ID)
		}
	}
	if e.Doc.Binding == primitives.BindingEarly {
		for _, s := range e.Doc.States {
			if err := bindDataElements(s, dm, ctx); err != nil {
				return err
			}
		}
	}

	entered := InitialEntrySet(e.Doc, e.History)
	for _, s := range entered {
		st := e.Doc.MustState(s)
		if e.Doc.Binding == primitives.BindingLate {
			if err := bindDataElements(st, dm, ctx); err != nil {
				return err
			}
		}
		if st.IsAtomic() {
			e.Config.Add(s)
		}
		for _, block := range st.OnEntry {
			if err := e.Runner.Run(block, ctx, e.Queues); err != nil {
				return err
			}
		}
		for _, inv := range st.Invokes {
			if err := e.Runner.StartInvoke(inv, ctx, e.Queues); err != nil {
				return err
			}
		}
	}
	return e.stabilize(ctx)
}

// RunMacrostep consumes one external event through to quiescence: select
// and apply the transitions it enables, then drain eventless transitions
// and the internal queue until both are empty (spec.md §4.9). Returns
// true if the root's final state was reached (the instance has
// terminated).
func (e *Engine) RunMacrostep(dm *primitives.Datamodel, sessionID string, external primitives.Event) (bool, error) {
	ctx := e.evalContext(sessionID, external)
	ctx.Datamodel = dm
	trans, err := SelectTransitions(e.Doc, e.Config, external.Name, e.Evaluator, ctx)
	if err != nil {
		return false, err
	}
	if len(trans) > 0 {
		if err := ApplyMicrostep(e.Doc, e.Config, e.History, trans, e.Runner, ctx, e.Queues); err != nil {
			return false, err
		}
	}
	if err := e.stabilize(ctx); err != nil {
		return false, err
	}
	_, done := IsInFinalOfRoot(e.Doc, e.Config)
	return done, nil
}

// stabilize loops eventless-transition microsteps and internal-queue
// events until neither produces further enabled transitions, i.e. until
// the configuration is quiescent with respect to everything but a new
// external event (spec.md §4.9 steps 3-5).
func (e *Engine) stabilize(ctx *primitives.EvalContext) error {
	for {
		ctx.Event = primitives.Event{}
		trans, err := SelectEventlessTransitions(e.Doc, e.Config, e.Evaluator, ctx)
		if err != nil {
			return err
		}
		if len(trans) > 0 {
			if err := ApplyMicrostep(e.Doc, e.Config, e.History, trans, e.Runner, ctx, e.Queues); err != nil {
				return err
			}
			continue
		}

		ev, ok := e.Queues.PopInternal()
		if !ok {
			return nil
		}
		ctx.Event = ev
		trans, err = SelectTransitions(e.Doc, e.Config, ev.Name, e.Evaluator, ctx)
		if err != nil {
			return err
		}
		if len(trans) > 0 {
			if err := ApplyMicrostep(e.Doc, e.Config, e.History, trans, e.Runner, ctx, e.Queues); err != nil {
				return err
			}
		}
	}
}
