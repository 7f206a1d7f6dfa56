package primitives

// EvalContext is the read/write view an ExprEvaluator (C8) and the
// executable-content runner (C9) see of a running instance: the current
// datamodel, the `_event` bound for this step, and read-only access to the
// active configuration for the In() predicate. Kept in this package (rather
// than internal/eval) so internal/core and internal/content can both depend
// on it without an import cycle through internal/eval.
type EvalContext struct {
	Doc       *Document
	Datamodel *Datamodel
	Event     Event
	Config    func() map[StateIndex]struct{} // active atomic states, by index
	SessionID string
	Evaluator Evaluator
}

// InState implements the SCXML In() predicate: true if id names a state in
// the current active configuration or one of its ancestors.
func (c *EvalContext) InState(id string) bool {
	idx, ok := c.Doc.Lookup(id)
	if !ok {
		return false
	}
	active := c.Config()
	for leaf := range active {
		for _, anc := range c.Doc.AncestorsOf(leaf) {
			if anc == idx {
				return true
			}
		}
	}
	return false
}
