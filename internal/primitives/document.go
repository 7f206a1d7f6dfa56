package primitives

import "fmt"

// StateIndex is an arena index into Document.States. Index 0 is always the
// document root. Grounded on the teacher's arena-of-indices design note
// (statechartx DESIGN NOTES §9): cyclic parent/child references are
// represented by index, never by owning pointer.
type StateIndex uint32

// NoState is the all-bits-set sentinel meaning "no state"; the zero value,
// index 0, is the root. NoState marks e.g. a transition with no
// targets, or a history state with nothing recorded yet).
const NoState StateIndex = ^StateIndex(0)

// StateKind classifies a node in the state tree.
type StateKind int

const (
	KindAtomic StateKind = iota
	KindCompound
	KindParallel
	KindFinal
	KindHistoryShallow
	KindHistoryDeep
	KindInitialPseudo
)

func (k StateKind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindCompound:
		return "compound"
	case KindParallel:
		return "parallel"
	case KindFinal:
		return "final"
	case KindHistoryShallow:
		return "history(shallow)"
	case KindHistoryDeep:
		return "history(deep)"
	case KindInitialPseudo:
		return "initial-pseudo"
	default:
		return "unknown"
	}
}

func (k StateKind) IsHistory() bool {
	return k == KindHistoryShallow || k == KindHistoryDeep
}

// Position is the source location of an element, used for diagnostics.
type Position struct {
	Line   int
	Column int
}

// DataElement is one <data id="..." expr="..."/> entry of a <datamodel>.
type DataElement struct {
	ID       string
	Expr     string // value expression, evaluated at binding time
	Content  string // inline literal content, used if Expr == ""
	Position Position
}

// State is one node of the document tree, arena-indexed.
type State struct {
	Index StateIndex
	ID    string // unique, non-empty for all but the implicit document root wrapper
	Kind  StateKind

	Parent   StateIndex // NoState for the root
	Children []StateIndex

	// Initial holds the default child to enter for Compound/Parallel states,
	// resolved from either the `initial` attribute or a nested <initial>
	// child transition (never both — enforced by the validator).
	Initial StateIndex

	// InitialIDs is the raw initial-child ID(s) as written by the parser
	// (from the `initial` attribute, or the target list of a nested
	// <initial><transition>), resolved into Initial by the validator.
	InitialIDs []string

	// Transitions in document order.
	Transitions []*Transition

	// OnEntry/OnExit are each a sequence of independently-atomic action
	// blocks — a state may carry more than one <onentry>/<onexit> child.
	OnEntry [][]ExecutableContent
	OnExit  [][]ExecutableContent

	// DataElements scoped to this state's own <datamodel> (not inherited).
	DataElements []DataElement

	// HistoryDefault is the lone default transition of a history pseudostate.
	HistoryDefault *Transition

	// Invokes are this state's direct <invoke> children, started when the
	// state is entered and cancelled when it is exited (spec.md §4.3/§4.6).
	Invokes []*Invoke

	// DoneData is a <final>'s <donedata> child, if any.
	DoneData *DoneData

	DocumentOrder int
	Depth         int
	Position      Position
}

func (s *State) IsAtomic() bool { return s.Kind == KindAtomic || s.Kind == KindFinal }

// Document is the immutable (after validation) tree of states, transitions,
// and data produced by the parser, decorated by the validator.
type Document struct {
	Name    string
	Root    StateIndex
	Initial StateIndex // document-level initial target (top-level state); InitialTargets[0] once resolved

	// InitialIDs is the raw <scxml initial="..."> attribute as written:
	// zero or more space-separated IDREFS (per W3C SCXML, `initial` may
	// name more than one leaf when entering a <parallel> directly).
	InitialIDs []string

	// InitialTargets is InitialIDs resolved to arena indices, in document
	// order of appearance in the attribute; set by the validator.
	InitialTargets []StateIndex

	States []*State // arena; States[i].Index == StateIndex(i)
	Binding   BindingMode
	Version   string
	XMLNS     string
	Validated bool

	// Lookup maps, populated by the validator (C3).
	ByID         map[string]StateIndex
	Ancestors    map[StateIndex][]StateIndex // self-inclusive, root-first
	Warnings     []string
}

// BindingMode controls when <data> elements are initialized.
type BindingMode int

const (
	BindingEarly BindingMode = iota
	BindingLate
)

func (b BindingMode) String() string {
	if b == BindingLate {
		return "late"
	}
	return "early"
}

// State returns the state at idx, or nil if out of range.
func (d *Document) State(idx StateIndex) *State {
	if idx == NoState || int(idx) >= len(d.States) {
		return nil
	}
	return d.States[idx]
}

// MustState panics if idx is invalid; used after validation where indices
// are guaranteed well-formed.
func (d *Document) MustState(idx StateIndex) *State {
	s := d.State(idx)
	if s == nil {
		panic(fmt.Sprintf("scxml: invalid state index %d", idx))
	}
	return s
}

// Lookup resolves a state by its document ID.
func (d *Document) Lookup(id string) (StateIndex, bool) {
	idx, ok := d.ByID[id]
	return idx, ok
}

// AncestorsOf returns the self-inclusive, root-first ancestor chain of idx.
// Requires the document to be validated (ancestor chains are precomputed
// there); falls back to a live walk otherwise so callers mid-construction
// (e.g. the validator itself) still get a correct answer.
func (d *Document) AncestorsOf(idx StateIndex) []StateIndex {
	if d.Ancestors != nil {
		if chain, ok := d.Ancestors[idx]; ok {
			return chain
		}
	}
	var chain []StateIndex
	for cur := idx; cur != NoState; {
		chain = append(chain, cur)
		cur = d.MustState(cur).Parent
	}
	// reverse to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IsDescendant reports whether descendant is ancestor itself or a proper
// descendant of ancestor.
func (d *Document) IsDescendant(descendant, ancestor StateIndex) bool {
	for cur := descendant; cur != NoState; cur = d.MustState(cur).Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// LCCA returns the least common compound ancestor of a and b: the deepest
// Compound or Parallel state (or the document Root) that contains both.
func (d *Document) LCCA(a, b StateIndex) StateIndex {
	ancA := d.AncestorsOf(a)
	ancB := d.AncestorsOf(b)
	minLen := len(ancA)
	if len(ancB) < minLen {
		minLen = len(ancB)
	}
	lcca := d.Root
	for i := 0; i < minLen; i++ {
		if ancA[i] != ancB[i] {
			break
		}
		s := d.MustState(ancA[i])
		if s.Kind == KindCompound || s.Kind == KindParallel || s.Index == d.Root {
			lcca = ancA[i]
		}
	}
	return lcca
}
