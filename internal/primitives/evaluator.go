package primitives

// Evaluator is the ExprEvaluator trait (C8, spec.md §4.5): the pluggable
// expression language behind <transition cond="...">, <assign>, <data
// expr="...">, and friends. Declared here (rather than in internal/eval)
// so EvalContext can carry one without an import cycle; internal/eval's
// Evaluator is this same interface under another name, kept for
// discoverability alongside its default implementation.
type Evaluator interface {
	// EvalBool evaluates expr as a boolean condition. Callers treat a
	// missing/empty cond as always-true without invoking the evaluator.
	EvalBool(expr string, ctx *EvalContext) (bool, error)

	// EvalValue evaluates expr and returns its value.
	EvalValue(expr string, ctx *EvalContext) (any, error)

	// Assign evaluates expr and writes it into the datamodel at location.
	Assign(location, expr string, ctx *EvalContext) error
}
