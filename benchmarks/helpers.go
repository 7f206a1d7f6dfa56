// Package benchmarks measures the interpreter's transition latency, event
// throughput, and per-instance memory footprint across a few representative
// chart shapes.
package benchmarks

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/comalice/scxml"
	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/primitives"
)

// GenFlatDoc builds a chart with n atomic sibling states, each cycling to
// the next on "tick".
func GenFlatDoc(n int) *primitives.Document {
	if n < 1 {
		n = 1
	}
	b := scxml.NewBuilder("s0")
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		target := fmt.Sprintf("s%d", (i+1)%n)
		b.State(id).On("tick", target, "")
	}
	doc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return doc
}

// GenDeepDoc builds a chart depth levels of compound nesting deep, with a
// two-state toggle at the bottom - so a "tick" transition's LCCA walk
// crosses depth ancestor levels.
func GenDeepDoc(depth int) *primitives.Document {
	if depth < 1 {
		depth = 1
	}
	path := "c0"
	for i := 1; i < depth; i++ {
		path += fmt.Sprintf(".c%d", i)
	}
	leaf1 := path + ".leaf1"
	leaf2 := path + ".leaf2"

	b := scxml.NewBuilder("c0")
	b.State(leaf1).On("tick", leaf2, "")
	b.State(leaf2).On("tick", leaf1, "")
	doc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return doc
}

// GenWideDoc builds one "main" state with n candidate "tick" transitions in
// document order; only the last one's cond is true, so selection scans all
// n before committing.
func GenWideDoc(n int) *primitives.Document {
	if n < 1 {
		n = 1
	}
	b := scxml.NewBuilder("main")
	main := b.State("main")
	for i := 0; i < n; i++ {
		target := fmt.Sprintf("target%d", i)
		cond := "false"
		if i == n-1 {
			cond = "true"
		}
		main.On("tick", target, cond)
		b.State(target).On("tick", "main", "")
	}
	doc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return doc
}

// GenSnapshotYAML starts an instance over the requested shape, sends one
// "tick", and marshals the resulting snapshot to YAML - exercising the same
// host.Snapshot/yaml.v3 path production.YAMLPersister uses.
func GenSnapshotYAML(numStates int, hierarchical bool) []byte {
	var doc *primitives.Document
	if hierarchical {
		doc = GenDeepDoc(5)
	} else {
		doc = GenFlatDoc(numStates)
	}

	h := scxml.NewHost(doc, eval.NewDefaultEvaluator())
	if err := h.Start(context.Background()); err != nil {
		panic(err)
	}
	defer h.Stop()
	_ = h.Send("tick", nil)

	data, err := yaml.Marshal(h.Snapshot())
	if err != nil {
		panic(err)
	}
	return data
}
