package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/primitives"
)

// noopRunner executes <raise> only, enough to drive the engine tests
// without pulling in internal/content.
type noopRunner struct{}

func (noopRunner) Run(actions []primitives.ExecutableContent, ctx *primitives.EvalContext, q *Queues) error {
	for _, a := range actions {
		if r, ok := a.(*primitives.Raise); ok {
			q.PushInternal(primitives.NewInternalEvent(r.Event, nil))
		}
	}
	return nil
}

func (noopRunner) StartInvoke(inv *primitives.Invoke, ctx *primitives.EvalContext, q *Queues) error {
	return nil
}

func (noopRunner) CancelInvoke(inv *primitives.Invoke, ctx *primitives.EvalContext) error { return nil }

// buildSimpleDoc assembles a tiny document by hand: root -> top (compound,
// initial=a) with children a, b (atomic), and a transition a--"go"-->b.
func buildSimpleDoc(t *testing.T) *primitives.Document {
	t.Helper()
	doc := &primitives.Document{ByID: map[string]primitives.StateIndex{}}

	root := &primitives.State{Index: 0, ID: "__root", Kind: primitives.KindCompound, Parent: primitives.NoState, DocumentOrder: 0, Depth: 0}
	top := &primitives.State{Index: 1, ID: "top", Kind: primitives.KindCompound, Parent: 0, DocumentOrder: 1, Depth: 1}
	a := &primitives.State{Index: 2, ID: "a", Kind: primitives.KindAtomic, Parent: 1, DocumentOrder: 2, Depth: 2}
	b := &primitives.State{Index: 3, ID: "b", Kind: primitives.KindAtomic, Parent: 1, DocumentOrder: 3, Depth: 2}

	root.Children = []primitives.StateIndex{1}
	root.Initial = 1
	top.Children = []primitives.StateIndex{2, 3}
	top.Initial = 2

	tr := &primitives.Transition{
		Source:  2,
		Events:  []primitives.EventDescriptor{"go"},
		Targets: []primitives.StateIndex{3},
		Kind:    primitives.External,
	}
	a.Transitions = []*primitives.Transition{tr}

	doc.States = []*primitives.State{root, top, a, b}
	doc.Root = 0
	doc.Initial = 1
	doc.ByID = map[string]primitives.StateIndex{"top": 1, "a": 2, "b": 3}
	doc.Ancestors = map[primitives.StateIndex][]primitives.StateIndex{
		0: {0},
		1: {0, 1},
		2: {0, 1, 2},
		3: {0, 1, 3},
	}
	doc.Validated = true
	return doc
}

func TestEngineInitializeAndTransition(t *testing.T) {
	doc := buildSimpleDoc(t)
	engine := NewEngine(doc, eval.NewDefaultEvaluator(), noopRunner{})
	dm := primitives.NewDatamodel()

	require.NoError(t, engine.Initialize(dm, "s1"))
	assert.True(t, engine.Config.Has(2))
	assert.False(t, engine.Config.Has(3))

	done, err := engine.RunMacrostep(dm, "s1", primitives.NewEvent("go", nil))
	require.NoError(t, err)
	assert.False(t, done)
	assert.True(t, engine.Config.Has(3))
	assert.False(t, engine.Config.Has(2))
}

func TestEngineReachesFinal(t *testing.T) {
	doc := &primitives.Document{ByID: map[string]primitives.StateIndex{}}
	root := &primitives.State{Index: 0, ID: "__root", Kind: primitives.KindCompound, Parent: primitives.NoState, DocumentOrder: 0, Depth: 0}
	top := &primitives.State{Index: 1, ID: "top", Kind: primitives.KindCompound, Parent: 0, DocumentOrder: 1, Depth: 1}
	working := &primitives.State{Index: 2, ID: "working", Kind: primitives.KindAtomic, Parent: 1, DocumentOrder: 2, Depth: 2}
	done := &primitives.State{Index: 3, ID: "done", Kind: primitives.KindFinal, Parent: 0, DocumentOrder: 3, Depth: 1}

	root.Children = []primitives.StateIndex{1, 3}
	root.Initial = 1
	top.Children = []primitives.StateIndex{2}
	top.Initial = 2
	working.Transitions = []*primitives.Transition{{
		Source: 2, Events: []primitives.EventDescriptor{"finish"}, Targets: []primitives.StateIndex{3}, Kind: primitives.External,
	}}

	doc.States = []*primitives.State{root, top, working, done}
	doc.Root = 0
	doc.Initial = 1
	doc.ByID = map[string]primitives.StateIndex{"top": 1, "working": 2, "done": 3}
	doc.Ancestors = map[primitives.StateIndex][]primitives.StateIndex{
		0: {0}, 1: {0, 1}, 2: {0, 1, 2}, 3: {0, 3},
	}
	doc.Validated = true

	engine := NewEngine(doc, eval.NewDefaultEvaluator(), noopRunner{})
	dmod := primitives.NewDatamodel()
	require.NoError(t, engine.Initialize(dmod, "s1"))

	reached, err := engine.RunMacrostep(dmod, "s1", primitives.NewEvent("finish", nil))
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestHistoryShallowRestore(t *testing.T) {
	hist := NewHistoryStore()
	doc := &primitives.Document{ByID: map[string]primitives.StateIndex{}}

	root := &primitives.State{Index: 0, ID: "__root", Kind: primitives.KindCompound, Depth: 0, Parent: primitives.NoState}
	p := &primitives.State{Index: 1, ID: "p", Kind: primitives.KindCompound, Parent: 0, Depth: 1}
	h := &primitives.State{Index: 2, ID: "h", Kind: primitives.KindHistoryShallow, Parent: 1, Depth: 2}
	c1 := &primitives.State{Index: 3, ID: "c1", Kind: primitives.KindAtomic, Parent: 1, Depth: 2}
	c2 := &primitives.State{Index: 4, ID: "c2", Kind: primitives.KindAtomic, Parent: 1, Depth: 2}

	root.Children = []primitives.StateIndex{1}
	p.Children = []primitives.StateIndex{2, 3, 4}

	doc.States = []*primitives.State{root, p, h, c1, c2}
	doc.Root = 0
	doc.Ancestors = map[primitives.StateIndex][]primitives.StateIndex{
		0: {0}, 1: {0, 1}, 2: {0, 1, 2}, 3: {0, 1, 3}, 4: {0, 1, 4},
	}

	active := NewConfiguration(4) // c2 is active
	hist.RecordExit(doc, 1, active)

	rec, ok := hist.Restore(2)
	require.True(t, ok)
	assert.Equal(t, []primitives.StateIndex{4}, rec)
}
