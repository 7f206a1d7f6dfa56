package scxml

import (
	"strings"

	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/validator"
)

// Builder is a fluent, programmatic alternative to parsing an SCXML
// document from XML: it assembles the same primitives.Document the parser
// produces, for callers that want to construct a chart in Go rather than
// author markup.
//
// Grounded on the teacher's MachineBuilder (statechartx/builder.go): the
// same dot-path hierarchical naming with auto-created compound parents,
// generalized from the teacher's flat State/Transition pair to the full
// SCXML node set (parallel regions, history, datamodel, executable
// content) and backed by primitives.Document's arena instead of a
// name-to-StateID map.
type Builder struct {
	doc    *primitives.Document
	byName map[string]primitives.StateIndex
	err    error
}

// NewBuilder starts a document whose root's `initial` attribute will be
// rootInitial once Build resolves it. rootInitial may be empty if the
// first top-level state added should become the implicit default.
func NewBuilder(rootInitial string) *Builder {
	doc := &primitives.Document{ByID: map[string]primitives.StateIndex{}}
	root := &primitives.State{ID: "", Kind: primitives.KindCompound, Parent: primitives.NoState}
	doc.States = append(doc.States, root)
	root.Index = 0
	doc.Root = 0
	if rootInitial != "" {
		doc.InitialIDs = strings.Fields(rootInitial)
	}
	return &Builder{doc: doc, byName: map[string]primitives.StateIndex{"": 0}}
}

// State returns a handle to the state named name, creating it (and any
// missing dot-path ancestors, as compound states) if it doesn't exist yet.
func (b *Builder) State(name string) *StateHandle {
	idx := b.resolve(name)
	return &StateHandle{b: b, idx: idx}
}

func (b *Builder) resolve(name string) primitives.StateIndex {
	if idx, ok := b.byName[name]; ok {
		return idx
	}
	parentName, _ := splitPath(name)
	parent := b.resolve(parentName)
	st := &primitives.State{
		ID:            name,
		Kind:          primitives.KindAtomic,
		Parent:        parent,
		DocumentOrder: len(b.doc.States),
		Depth:         b.doc.MustState(parent).Depth + 1,
	}
	idx := primitives.StateIndex(len(b.doc.States))
	st.Index = idx
	b.doc.States = append(b.doc.States, st)
	b.doc.ByID[name] = idx
	b.byName[name] = idx
	parentState := b.doc.MustState(parent)
	parentState.Children = append(parentState.Children, idx)
	if parentState.Kind == primitives.KindAtomic {
		parentState.Kind = primitives.KindCompound
	}
	return idx
}

func splitPath(path string) (parent, leaf string) {
	i := strings.LastIndex(path, ".")
	if i == -1 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Build resolves and validates the assembled document, returning the same
// errors Validate would against an equivalent parsed document.
func (b *Builder) Build() (*primitives.Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := validator.Validate(b.doc); err != nil {
		return nil, err
	}
	return b.doc, nil
}

// StateHandle configures one state fluently; every method returns the
// handle so calls chain.
type StateHandle struct {
	b   *Builder
	idx primitives.StateIndex
}

func (h *StateHandle) state() *primitives.State { return h.b.doc.MustState(h.idx) }

// Compound marks the state compound and sets its default initial child.
// initialName must be the full dot-path of an existing or about-to-exist
// child state.
func (h *StateHandle) Compound(initialName string) *StateHandle {
	st := h.state()
	st.Kind = primitives.KindCompound
	st.InitialIDs = []string{initialName}
	h.b.resolve(initialName)
	return h
}

// Parallel marks the state as a parallel region container.
func (h *StateHandle) Parallel() *StateHandle {
	h.state().Kind = primitives.KindParallel
	return h
}

// Final marks the state final, optionally with a <donedata> payload.
func (h *StateHandle) Final(data *primitives.DoneData) *StateHandle {
	st := h.state()
	st.Kind = primitives.KindFinal
	st.DoneData = data
	return h
}

// History marks the state a history pseudostate (deep if deep is true)
// with the given default-transition target.
func (h *StateHandle) History(deep bool, defaultTarget string) *StateHandle {
	st := h.state()
	if deep {
		st.Kind = primitives.KindHistoryDeep
	} else {
		st.Kind = primitives.KindHistoryShallow
	}
	st.HistoryDefault = &primitives.Transition{Source: h.idx, TargetIDs: []string{defaultTarget}}
	return h
}

// OnEntry appends one independently-atomic onentry block.
func (h *StateHandle) OnEntry(actions ...primitives.ExecutableContent) *StateHandle {
	st := h.state()
	st.OnEntry = append(st.OnEntry, actions)
	return h
}

// OnExit appends one independently-atomic onexit block.
func (h *StateHandle) OnExit(actions ...primitives.ExecutableContent) *StateHandle {
	st := h.state()
	st.OnExit = append(st.OnExit, actions)
	return h
}

// Data declares one <data> element scoped to this state.
func (h *StateHandle) Data(id, expr string) *StateHandle {
	st := h.state()
	st.DataElements = append(st.DataElements, primitives.DataElement{ID: id, Expr: expr})
	return h
}

// Invoke attaches an <invoke> child, started on entry and cancelled on
// exit.
func (h *StateHandle) Invoke(inv *primitives.Invoke) *StateHandle {
	st := h.state()
	st.Invokes = append(st.Invokes, inv)
	return h
}

// On adds a transition to target on event, with an optional cond
// expression (empty means unconditional) and action block. target must be
// the full dot-path of an existing or about-to-exist state; pass "" for a
// targetless transition (actions only, no state change).
func (h *StateHandle) On(event, target, cond string, actions ...primitives.ExecutableContent) *StateHandle {
	st := h.state()
	tr := &primitives.Transition{
		Source:        h.idx,
		DocumentOrder: len(h.b.doc.States) + len(st.Transitions),
		Cond:          cond,
		Actions:       actions,
	}
	if event != "" {
		tr.Events = []primitives.EventDescriptor{primitives.EventDescriptor(event)}
	}
	if target != "" {
		tr.TargetIDs = []string{target}
		h.b.resolve(target)
	}
	st.Transitions = append(st.Transitions, tr)
	return h
}
