package primitives

import "strings"

// TransitionKind is external (re-enters the source if source is a target
// ancestor) or internal (never exits the source).
type TransitionKind int

const (
	External TransitionKind = iota
	Internal
)

// EventDescriptor is one dot-delimited token pattern from a transition's
// `event` attribute, e.g. "error.execution" or "user.click.*".
type EventDescriptor string

// Matches reports whether the descriptor matches the given event name.
// Matching is token-prefix on dot-delimited tokens: "foo" matches "foo" and
// "foo.bar" but not "foobar". A trailing "*" token is dropped before
// comparison, so "foo.*" behaves exactly like "foo"; the bare wildcard "*"
// matches any event name.
func (d EventDescriptor) Matches(name string) bool {
	if d == "*" {
		return true
	}
	descTokens := strings.Split(string(d), ".")
	if descTokens[len(descTokens)-1] == "*" {
		descTokens = descTokens[:len(descTokens)-1]
	}
	nameTokens := strings.Split(name, ".")
	if len(descTokens) > len(nameTokens) {
		return false
	}
	for i, tok := range descTokens {
		if tok != nameTokens[i] {
			return false
		}
	}
	return true
}

// Transition is one outgoing edge of a State.
type Transition struct {
	Source StateIndex

	// Events is the ordered list of descriptors from the `event` attribute.
	// Empty means eventless (fires whenever Cond is true, tried before any
	// event is consumed from the queues).
	Events []EventDescriptor

	// Cond is an optional boolean guard expression, evaluated via the
	// pluggable ExprEvaluator.
	Cond string

	// Targets in document order; empty means targetless (internal, no
	// state change beyond running Actions). Populated by the validator
	// from TargetIDs once every state ID in the document is known.
	Targets []StateIndex

	// TargetIDs holds the raw `target` attribute (space-separated state
	// IDs) as written by the parser; resolved into Targets by the
	// validator (C3), which also reports any id with no matching state.
	TargetIDs []string

	Kind    TransitionKind
	Actions []ExecutableContent

	DocumentOrder int
	Position      Position
}

// IsEventless reports whether this transition has no event descriptors.
func (t *Transition) IsEventless() bool { return len(t.Events) == 0 }

// MatchesEvent reports whether any of the transition's event descriptors
// match the given event name. Always false for eventless transitions.
func (t *Transition) MatchesEvent(name string) bool {
	for _, d := range t.Events {
		if d.Matches(name) {
			return true
		}
	}
	return false
}
