package realtime

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/parser"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/production/publish"
	"github.com/comalice/scxml/internal/validator"
)

func parseDoc(t *testing.T, src string) *primitives.Document {
	t.Helper()
	doc, err := parser.Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.NoError(t, validator.Validate(doc))
	return doc
}

const trafficLight = `
<scxml initial="red">
  <state id="red"><transition event="timer" target="green"/></state>
  <state id="green"><transition event="timer" target="yellow"/></state>
  <state id="yellow"><transition event="timer" target="red"/></state>
</scxml>`

func TestRuntimeCreation(t *testing.T) {
	doc := parseDoc(t, trafficLight)
	rt := NewRuntime(doc, eval.NewDefaultEvaluator(), Config{TickRate: 10 * time.Millisecond})
	require.NotNil(t, rt)
}

func TestTickLoopTiming(t *testing.T) {
	doc := parseDoc(t, trafficLight)
	rt := NewRuntime(doc, eval.NewDefaultEvaluator(), Config{TickRate: 10 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	startTick := rt.TickNumber()
	time.Sleep(105 * time.Millisecond) // ~10 ticks
	endTick := rt.TickNumber()

	diff := endTick - startTick
	assert.GreaterOrEqual(t, diff, uint64(8))
	assert.LessOrEqual(t, diff, uint64(12))
}

func TestSimpleTransition(t *testing.T) {
	doc := parseDoc(t, trafficLight)
	rt := NewRuntime(doc, eval.NewDefaultEvaluator(), Config{TickRate: 10 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	assert.Equal(t, []string{"red"}, rt.ActiveAtomicStates())

	require.NoError(t, rt.SendEvent(primitives.NewEvent("timer", nil)))
	time.Sleep(15 * time.Millisecond)

	assert.Equal(t, []string{"green"}, rt.ActiveAtomicStates())
}

func TestEventOrderingUnderConcurrentSend(t *testing.T) {
	doc := parseDoc(t, trafficLight)
	rt := NewRuntime(doc, eval.NewDefaultEvaluator(), Config{
		TickRate:         10 * time.Millisecond,
		MaxEventsPerTick: 1000,
	})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 5; j++ {
				_ = rt.SendEvent(primitives.NewEvent("timer", id*5+j))
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	time.Sleep(50 * time.Millisecond)
	// 50 "timer" events cycle red->green->yellow->red every 3: ends on yellow.
	assert.Equal(t, []string{"yellow"}, rt.ActiveAtomicStates())
}

func TestEventBatchingBackpressure(t *testing.T) {
	doc := parseDoc(t, trafficLight)
	rt := NewRuntime(doc, eval.NewDefaultEvaluator(), Config{
		TickRate:         50 * time.Millisecond,
		MaxEventsPerTick: 2,
	})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	require.NoError(t, rt.SendEvent(primitives.NewEvent("timer", nil)))
	require.NoError(t, rt.SendEvent(primitives.NewEvent("timer", nil)))
	assert.ErrorIs(t, rt.SendEvent(primitives.NewEvent("timer", nil)), ErrQueueFull)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, rt.SendEvent(primitives.NewEvent("timer", nil)))
}

func TestRuntimePublishesProcessedEvents(t *testing.T) {
	doc := parseDoc(t, trafficLight)
	ch := make(chan publish.PublishedEvent, 4)
	pub := publish.NewChannelPublisher(ch)
	rt := NewRuntime(doc, eval.NewDefaultEvaluator(), Config{TickRate: 10 * time.Millisecond, Publisher: pub})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	require.NoError(t, rt.SendEvent(primitives.NewEvent("timer", nil)))

	select {
	case got := <-ch:
		assert.Equal(t, "timer", got.Event.Name)
		assert.Equal(t, "red", got.Metadata.FromState)
		assert.Equal(t, "green", got.Metadata.ToState)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

const selfSendChart = `
<scxml initial="a">
  <state id="a">
    <transition event="go" target="b">
      <send event="bounced"/>
    </transition>
  </state>
  <state id="b">
    <transition event="bounced" target="c"/>
  </state>
  <state id="c"/>
</scxml>`

// TestRuntimeDeliversSelfTargetedImmediateSend is realtime's analogue of
// host's TestHostDeliversSelfTargetedImmediateSend: a no-delay, no-target
// <send> lands on engine.Queues.External, which processTick must drain into
// a later tick rather than leave stranded once the originating tick's
// RunMacrostep call returns.
func TestRuntimeDeliversSelfTargetedImmediateSend(t *testing.T) {
	doc := parseDoc(t, selfSendChart)
	rt := NewRuntime(doc, eval.NewDefaultEvaluator(), Config{TickRate: 10 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	require.NoError(t, rt.SendEvent(primitives.NewEvent("go", nil)))

	require.Eventually(t, func() bool {
		states := rt.ActiveAtomicStates()
		return len(states) == 1 && states[0] == "c"
	}, time.Second, 5*time.Millisecond)
}

func TestEventSorting(t *testing.T) {
	events := []EventWithMeta{
		{Event: primitives.NewEvent("e1", nil), SequenceNum: 3, Priority: 0},
		{Event: primitives.NewEvent("e2", nil), SequenceNum: 1, Priority: 0},
		{Event: primitives.NewEvent("e3", nil), SequenceNum: 2, Priority: 10},
		{Event: primitives.NewEvent("e4", nil), SequenceNum: 4, Priority: 0},
		{Event: primitives.NewEvent("e5", nil), SequenceNum: 5, Priority: 5},
	}

	sortEvents(events)

	var order []string
	for _, e := range events {
		order = append(order, e.Event.Name)
	}
	assert.Equal(t, []string{"e3", "e5", "e2", "e1", "e4"}, order)
}
