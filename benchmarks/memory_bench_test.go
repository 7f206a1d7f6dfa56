// Package benchmarks provides memory footprint benchmarks for a session's
// engine + datamodel, the per-instance state host.Host and realtime.Runtime
// both carry.
package benchmarks

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/scxml"
	"github.com/comalice/scxml/internal/content"
	"github.com/comalice/scxml/internal/core"
	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/primitives"
)

type sessionInstance struct {
	engine *core.Engine
	dm     *primitives.Datamodel
}

func newSessionInstance(doc *primitives.Document, id string) *sessionInstance {
	evaluator := eval.NewDefaultEvaluator()
	scheduler := core.NewScheduler()
	runner := content.NewRunner(evaluator, scheduler, zap.NewNop(), func() int64 { return time.Now().UnixNano() })
	engine := core.NewEngine(doc, evaluator, runner)
	dm := primitives.NewDatamodel()
	if err := engine.Initialize(dm, id); err != nil {
		panic(err)
	}
	return &sessionInstance{engine: engine, dm: dm}
}

func memorySimpleDoc() *primitives.Document {
	b := scxml.NewBuilder("idle")
	b.State("idle")
	doc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return doc
}

func BenchmarkMemoryFootprint(b *testing.B) {
	doc := memorySimpleDoc()
	numInstances := 1000
	var before runtime.MemStats
	runtime.ReadMemStats(&before)
	instances := make([]*sessionInstance, numInstances)
	for i := 0; i < numInstances; i++ {
		instances[i] = newSessionInstance(doc, fmt.Sprintf("mem%d", i))
	}
	runtime.GC()
	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	bytesPerInstance := (after.TotalAlloc - before.TotalAlloc) / uint64(numInstances)
	b.ReportMetric(float64(bytesPerInstance)/1024/1024, "MB/instance")
}

func BenchmarkMemoryFlat(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("states=%d", n), func(b *testing.B) {
			doc := GenFlatDoc(n)
			numInstances := 100
			var before runtime.MemStats
			runtime.ReadMemStats(&before)
			instances := make([]*sessionInstance, numInstances)
			for i := 0; i < numInstances; i++ {
				instances[i] = newSessionInstance(doc, fmt.Sprintf("flat%d", i))
			}
			runtime.GC()
			var after runtime.MemStats
			runtime.ReadMemStats(&after)
			bytesPerInstance := (after.TotalAlloc - before.TotalAlloc) / uint64(numInstances)
			bytesPerState := bytesPerInstance / uint64(n)
			b.ReportMetric(float64(bytesPerInstance)/1024/1024, "MB/instance")
			b.ReportMetric(float64(bytesPerState)/1024, "KB/state")
		})
	}
}

func BenchmarkMemoryDeep(b *testing.B) {
	for _, depth := range []int{1, 3, 5} {
		b.Run(fmt.Sprintf("depth=%d", depth), func(b *testing.B) {
			doc := GenDeepDoc(depth)
			// depth compounds on the ancestor path plus 2 leaves.
			numStates := depth + 2
			numInstances := 100
			var before runtime.MemStats
			runtime.ReadMemStats(&before)
			instances := make([]*sessionInstance, numInstances)
			for i := 0; i < numInstances; i++ {
				instances[i] = newSessionInstance(doc, fmt.Sprintf("deep%d", i))
			}
			runtime.GC()
			var after runtime.MemStats
			runtime.ReadMemStats(&after)
			bytesPerInstance := (after.TotalAlloc - before.TotalAlloc) / uint64(numInstances)
			bytesPerState := bytesPerInstance / uint64(numStates)
			b.ReportMetric(float64(bytesPerInstance)/1024/1024, "MB/instance")
			b.ReportMetric(float64(bytesPerState)/1024, "KB/state")
		})
	}
}
