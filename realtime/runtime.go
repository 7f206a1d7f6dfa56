package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comalice/scxml/internal/content"
	"github.com/comalice/scxml/internal/core"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/production/publish"
)

// ErrQueueFull is returned by SendEvent/SendEventWithPriority once a
// tick's batch has reached Config.MaxEventsPerTick.
var ErrQueueFull = errors.New("realtime: event queue full")

// Runtime drives one instance of a Document on a fixed tick, batching
// events between ticks instead of dispatching them as they arrive. See
// the package doc for the trade-offs against host.Host.
type Runtime struct {
	doc       *primitives.Document
	engine    *core.Engine
	runner    *content.Runner
	datamodel *primitives.Datamodel
	sessionID string
	logger    *zap.Logger
	publisher publish.Publisher

	tickRate time.Duration
	ticker   *time.Ticker
	tickNum  uint64

	eventBatch  []EventWithMeta
	batchMu     sync.Mutex
	sequenceNum uint64

	mu      sync.RWMutex
	termMu  sync.Mutex
	termSet bool
	termVal Terminal

	tickCtx    context.Context
	tickCancel context.CancelFunc
	stopped    chan struct{}
}

// Terminal mirrors host.Terminal: the final state reached once the root
// completes.
type Terminal struct {
	FinalStateID string
	DoneData     any
}

// Config configures the tick rate and per-tick batch capacity.
type Config struct {
	TickRate         time.Duration // default 16.667ms (60Hz)
	MaxEventsPerTick int           // default 1000
	Logger           *zap.Logger
	SessionID        string

	// Publisher, if set, is notified once per processed macrostep event
	// of the event and the active-state transition it drove.
	Publisher publish.Publisher
}

// NewRuntime constructs a tick-based Runtime around a validated Document.
func NewRuntime(doc *primitives.Document, evaluator primitives.Evaluator, cfg Config) *Runtime {
	if cfg.MaxEventsPerTick == 0 {
		cfg.MaxEventsPerTick = 1000
	}
	if cfg.TickRate == 0 {
		cfg.TickRate = 16667 * time.Microsecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	scheduler := core.NewScheduler()
	clock := func() int64 { return time.Now().UnixNano() }
	runner := content.NewRunner(evaluator, scheduler, cfg.Logger, clock)

	return &Runtime{
		doc:         doc,
		engine:      core.NewEngine(doc, evaluator, runner),
		runner:      runner,
		datamodel:   primitives.NewDatamodel(),
		sessionID:   cfg.SessionID,
		logger:      cfg.Logger,
		publisher:   cfg.Publisher,
		tickRate:    cfg.TickRate,
		eventBatch:  make([]EventWithMeta, 0, cfg.MaxEventsPerTick),
		stopped:     make(chan struct{}),
	}
}

// Start enters the initial configuration and begins ticking.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.engine.Initialize(rt.datamodel, rt.sessionID); err != nil {
		return err
	}
	rt.checkTerminal()

	rt.tickCtx, rt.tickCancel = context.WithCancel(ctx)
	rt.ticker = time.NewTicker(rt.tickRate)
	go rt.tickLoop()
	return nil
}

// Stop halts the tick loop and waits for it to exit. Safe to call once.
func (rt *Runtime) Stop() error {
	if rt.tickCancel != nil {
		rt.tickCancel()
	}
	if rt.ticker != nil {
		rt.ticker.Stop()
	}
	<-rt.stopped
	return nil
}

func (rt *Runtime) tickLoop() {
	defer close(rt.stopped)
	for {
		select {
		case <-rt.tickCtx.Done():
			return
		case <-rt.ticker.C:
			rt.processTick()
			rt.batchMu.Lock()
			rt.tickNum++
			rt.batchMu.Unlock()
		}
	}
}

// SendEvent queues an event for the next tick at default priority.
func (rt *Runtime) SendEvent(event primitives.Event) error {
	return rt.SendEventWithPriority(event, 0)
}

// SendEventWithPriority queues an event for the next tick; higher
// priority values are applied first within the tick, submission order
// breaking ties.
func (rt *Runtime) SendEventWithPriority(event primitives.Event, priority int) error {
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()
	if len(rt.eventBatch) >= cap(rt.eventBatch) {
		return ErrQueueFull
	}
	rt.eventBatch = append(rt.eventBatch, EventWithMeta{
		Event:       event,
		SequenceNum: rt.sequenceNum,
		Priority:    priority,
	})
	rt.sequenceNum++
	return nil
}

// TickNumber returns the number of ticks processed so far.
func (rt *Runtime) TickNumber() uint64 {
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()
	return rt.tickNum
}

// ActiveAtomicStates returns the ids of the currently active atomic
// states, in document order.
func (rt *Runtime) ActiveAtomicStates() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	atoms := core.SortedAtoms(rt.doc, rt.engine.Config)
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = rt.doc.MustState(a).ID
	}
	return out
}

// Datamodel returns a defensive snapshot of the instance's datamodel.
func (rt *Runtime) Datamodel() map[string]any {
	return rt.datamodel.Snapshot()
}

// Terminal returns the terminal observation and true once the root has
// reached a final state.
func (rt *Runtime) Terminal() (Terminal, bool) {
	rt.termMu.Lock()
	defer rt.termMu.Unlock()
	return rt.termVal, rt.termSet
}

func (rt *Runtime) checkTerminal() {
	rt.mu.Lock()
	rt.checkTerminalLocked()
	rt.mu.Unlock()
}

// checkTerminalLocked is checkTerminal for a caller already holding rt.mu
// (processTick's per-event drain loop) - rt.mu is not reentrant, so
// checkTerminal itself cannot be called from inside that loop.
func (rt *Runtime) checkTerminalLocked() {
	idx, ok := core.IsInFinalOfRoot(rt.doc, rt.engine.Config)
	if !ok {
		return
	}
	final := rt.doc.MustState(idx)
	var data any
	if resolver, ok := any(rt.runner).(core.DoneDataResolver); ok {
		ectx := &primitives.EvalContext{Doc: rt.doc, Datamodel: rt.datamodel, SessionID: rt.sessionID, Evaluator: rt.engine.Evaluator}
		if d, err := resolver.ResolveDoneData(final, ectx); err == nil {
			data = d
		}
	}
	rt.termMu.Lock()
	rt.termSet = true
	rt.termVal = Terminal{FinalStateID: final.ID, DoneData: data}
	rt.termMu.Unlock()
	rt.logger.Info("realtime instance reached final state", zap.String("state", final.ID))
}
