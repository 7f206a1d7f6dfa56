// Package eval defines the pluggable expression-evaluator trait (C8,
// spec.md §4.5) and ships a default, dependency-free implementation
// sufficient for the engine's own tests and simple charts.
//
// Per spec.md §1, the expression language itself (ECMAScript-like or
// otherwise) is explicitly out of scope and pluggable; embedders that need
// real ECMAScript semantics supply their own Evaluator (e.g. backed by
// goja, as joeycumines-go-utilpkg's eventloop package does for its own
// embedded-JS use case) rather than the engine choosing one for them.
package eval

import "github.com/comalice/scxml/internal/primitives"

// Evaluator is the ExprEvaluator trait (C8). It is exactly
// primitives.Evaluator, aliased here so callers outside internal/core can
// depend on "eval.Evaluator" without reaching into primitives directly.
// Implementations must be free of shared mutable state, or provide their
// own synchronization, because the engine may evaluate expressions from
// multiple instances concurrently even though any single instance is
// processed by one goroutine at a time (spec.md §5).
type Evaluator = primitives.Evaluator
