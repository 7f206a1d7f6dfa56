// Package benchmarks provides performance benchmarks for the engine's core
// transition-selection and microstep logic, bypassing host.Host's actor
// goroutine so each benchmark measures RunMacrostep itself.
package benchmarks

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/scxml"
	"github.com/comalice/scxml/internal/content"
	"github.com/comalice/scxml/internal/core"
	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/primitives"
)

func newBenchEngine(b *testing.B, doc *primitives.Document) (*core.Engine, *primitives.Datamodel) {
	b.Helper()
	evaluator := eval.NewDefaultEvaluator()
	scheduler := core.NewScheduler()
	runner := content.NewRunner(evaluator, scheduler, zap.NewNop(), func() int64 { return time.Now().UnixNano() })
	engine := core.NewEngine(doc, evaluator, runner)
	dm := primitives.NewDatamodel()
	if err := engine.Initialize(dm, "bench"); err != nil {
		b.Fatal(err)
	}
	return engine, dm
}

func BenchmarkSimpleTransition(b *testing.B) {
	bld := scxml.NewBuilder("idle")
	bld.State("idle").On("tick", "idle", "")
	doc, err := bld.Build()
	if err != nil {
		b.Fatal(err)
	}

	engine, dm := newBenchEngine(b, doc)
	e := primitives.NewEvent("tick", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RunMacrostep(dm, "bench", e); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHierarchicalTransition(b *testing.B) {
	doc := GenDeepDoc(1)
	engine, dm := newBenchEngine(b, doc)
	e := primitives.NewEvent("tick", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RunMacrostep(dm, "bench", e); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDeepHierarchicalTransition(b *testing.B) {
	doc := GenDeepDoc(10)
	engine, dm := newBenchEngine(b, doc)
	e := primitives.NewEvent("tick", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RunMacrostep(dm, "bench", e); err != nil {
			b.Fatal(err)
		}
	}
}

func parallelDoc() *primitives.Document {
	bld := scxml.NewBuilder("p")
	bld.State("p").Parallel()
	bld.State("p.region1").On("tick", "p.region1.a", "")
	bld.State("p.region1.a")
	bld.State("p.region2").On("tick", "p.region2.a", "")
	bld.State("p.region2.a")
	doc, err := bld.Build()
	if err != nil {
		panic(err)
	}
	return doc
}

func BenchmarkParallelTransition(b *testing.B) {
	engine, dm := newBenchEngine(b, parallelDoc())
	e := primitives.NewEvent("tick", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RunMacrostep(dm, "bench", e); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGuardedTransition(b *testing.B) {
	bld := scxml.NewBuilder("idle")
	bld.State("idle").On("tick", "idle", "true")
	doc, err := bld.Build()
	if err != nil {
		b.Fatal(err)
	}

	engine, dm := newBenchEngine(b, doc)
	e := primitives.NewEvent("tick", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RunMacrostep(dm, "bench", e); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWideTransitionSelection(b *testing.B) {
	doc := GenWideDoc(50)
	engine, dm := newBenchEngine(b, doc)
	e := primitives.NewEvent("tick", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := engine.RunMacrostep(dm, "bench", e); err != nil {
			b.Fatal(err)
		}
	}
}
