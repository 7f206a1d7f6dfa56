package core

import "github.com/comalice/scxml/internal/primitives"

// bindDataElements initializes every not-yet-initialized <data> element
// owned by st, using expr (via the evaluator) or falling back to the
// element's literal inline content. Already-bound elements (early binding
// already ran, or a late-bound element was entered once before) are
// skipped, so this is safe to call on every entry of st.
func bindDataElements(st *primitives.State, dm *primitives.Datamodel, ctx *primitives.EvalContext) error {
	for _, de := range st.DataElements {
		if !dm.IsPending(de.ID) {
			continue
		}
		var val any
		switch {
		case de.Expr != "":
			v, err := ctx.Evaluator.EvalValue(de.Expr, ctx)
			if err != nil {
				return err
			}
			val = v
		case de.Content != "":
			val = de.Content
		default:
			val = nil
		}
		dm.Set(de.ID, val)
	}
	return nil
}
