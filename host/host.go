// Package host implements the state machine host (C13, spec.md §4.10): a
// single-threaded actor serializing external sends against one running
// instance, draining the delayed-send scheduler, and reporting terminal
// observation once the root's final state is reached.
//
// Grounded on the teacher's Machine (comalice/statechartx
// internal/core/machine.go): one actor goroutine reading off a buffered
// channel, functional-options construction, idempotent Start/Stop. The
// teacher's ad hoc candidate-transition search is replaced end to end by
// internal/core's selector/microstep/macrostep (C10-C12); what's kept is
// the concurrency shape around it.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/comalice/scxml/internal/content"
	"github.com/comalice/scxml/internal/core"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/production/publish"
)

// ErrNotRunning is returned by Send/SendSync-style calls made after the
// instance has reached a terminal final state or been stopped (spec.md
// §7: "further external sends return a NotRunning error").
var ErrNotRunning = errors.New("host: instance is not running")

// ErrBackpressure is returned when the external inbox is full.
var ErrBackpressure = errors.New("host: event queue full (backpressure)")

// Terminal is the terminal observation surfaced once the root's final
// state is reached (spec.md §6 "Exit/terminal reporting").
type Terminal struct {
	FinalStateID string
	DoneData     any
}

// Host binds one parsed, validated Document to a running instance.
type Host struct {
	doc       *primitives.Document
	engine    *core.Engine
	runner    *content.Runner
	datamodel *primitives.Datamodel
	sessionID string
	logger    *zap.Logger
	tracer    trace.Tracer
	publisher publish.Publisher
	registry  Registry

	pollInterval time.Duration

	mu        sync.RWMutex
	running   bool
	stopped   bool
	terminal  *Terminal

	inbox chan sendRequest
	done  chan struct{}
	wg    sync.WaitGroup

	termMu   sync.Mutex
	termCond *sync.Cond
}

type sendRequest struct {
	event primitives.Event
}

// New constructs a Host around a validated Document. Call Start to enter
// the initial configuration and begin processing.
func New(doc *primitives.Document, evaluator primitives.Evaluator, opts ...Option) *Host {
	o := &options{
		logger:         zap.NewNop(),
		clock:          func() int64 { return time.Now().UnixNano() },
		sessionID:      uuid.NewString(),
		queueSize:      64,
		pollInterval:   int64(2 * time.Millisecond),
		invokeHandlers: make(map[string]content.InvokeHandler),
		sendHandlers:   make(map[string]content.SendHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("scxml/host")
	}

	scheduler := core.NewScheduler()
	runner := content.NewRunner(evaluator, scheduler, o.logger, o.clock)
	for typ, h := range o.invokeHandlers {
		runner.InvokeHandlers[typ] = h
	}
	for typ, h := range o.sendHandlers {
		runner.SendHandlers[typ] = h
	}

	h := &Host{
		doc:          doc,
		engine:       core.NewEngine(doc, evaluator, runner),
		runner:       runner,
		datamodel:    primitives.NewDatamodel(),
		sessionID:    o.sessionID,
		logger:       o.logger,
		tracer:       o.tracer,
		publisher:    o.publisher,
		registry:     o.registry,
		pollInterval: time.Duration(o.pollInterval),
		inbox:        make(chan sendRequest, o.queueSize),
		done:         make(chan struct{}),
	}
	h.termCond = sync.NewCond(&h.termMu)
	return h
}

// Start runs the instance to its initial stabilized configuration and
// launches the actor goroutine. Idempotent.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}

	_, span := h.tracer.Start(ctx, "scxml.initialize", trace.WithAttributes(
		attribute.String("scxml.session_id", h.sessionID),
	))
	err := h.engine.Initialize(h.datamodel, h.sessionID)
	span.End()
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("host: initialize: %w", err)
	}
	h.logger.Info("scxml instance started", zap.String("session", h.sessionID))

	h.running = true
	h.checkTerminalLocked()
	h.mu.Unlock()

	h.wg.Add(1)
	go h.loop()
	return nil
}

// loop is the single actor goroutine: it serializes external sends and
// delayed-timer firings against the instance, matching the teacher's
// Machine.interpret() shape.
func (h *Host) loop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-h.inbox:
			h.process(req.event)
		case <-ticker.C:
			h.pumpDue()
		case <-h.done:
			return
		}
	}
}

func (h *Host) pumpDue() {
	h.mu.Lock()
	if h.stopped || h.terminal != nil {
		h.mu.Unlock()
		return
	}
	due := h.runner.Scheduler.Due(h.nowLocked())
	h.mu.Unlock()
	for _, ds := range due {
		h.process(ds.Event)
	}
	h.drainExternal()
}

// drainExternal applies any event an InvokeHandler's send callback pushed
// onto the engine's external queue from its own goroutine since the last
// poll, one macrostep per event, on the same cadence pumpDue already uses
// for delayed-send timers.
func (h *Host) drainExternal() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.terminal != nil {
		return
	}
	for {
		ev, ok := h.engine.Queues.PopExternal()
		if !ok {
			return
		}
		h.runMacrostepLocked(ev)
		if h.terminal != nil {
			return
		}
	}
}

func (h *Host) nowLocked() int64 {
	return time.Now().UnixNano()
}

func (h *Host) process(ev primitives.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal != nil || h.stopped {
		return
	}
	h.runMacrostepLocked(ev)
}

// runMacrostepLocked applies ev and then drains any event it pushed onto
// the external queue synchronously - a self-targeted immediate <send>, or
// an invoke handler's send callback invoked inline from Start - through
// further macrosteps before returning, matching spec.md §4.9 step 2 (an
// external queue entry is due its own macrostep, not folded into the one
// that produced it). Caller must hold h.mu.
func (h *Host) runMacrostepLocked(ev primitives.Event) {
	for {
		fromState := h.activeAtomicStatesLocked()
		_, span := h.tracer.Start(context.Background(), "scxml.macrostep", trace.WithAttributes(
			attribute.String("scxml.event", ev.Name),
			attribute.String("scxml.session_id", h.sessionID),
		))
		done, err := h.engine.RunMacrostep(h.datamodel, h.sessionID, ev)
		span.End()
		if err != nil {
			h.logger.Error("macrostep failed", zap.Error(err), zap.String("event", ev.Name))
			return
		}
		h.logger.Debug("macrostep complete", zap.String("event", ev.Name), zap.Bool("done", done))
		toState := h.activeAtomicStatesLocked()
		h.publishLocked(ev, fromState, toState)
		h.registerLocked()
		if done {
			h.checkTerminalLocked()
			return
		}
		next, ok := h.engine.Queues.PopExternal()
		if !ok {
			return
		}
		ev = next
	}
}

// activeAtomicStatesLocked is ActiveAtomicStates for a caller already
// holding h.mu.
func (h *Host) activeAtomicStatesLocked() []string {
	atoms := core.SortedAtoms(h.doc, h.engine.Config)
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = h.doc.MustState(a).ID
	}
	return out
}

// publishLocked notifies h.publisher, if configured, of ev and the
// active-state transition it drove. Caller must hold h.mu.
func (h *Host) publishLocked(ev primitives.Event, from, to []string) {
	if h.publisher == nil {
		return
	}
	meta := publish.Metadata{
		SessionID: h.sessionID,
		FromState: strings.Join(from, ","),
		ToState:   strings.Join(to, ","),
		Timestamp: time.Now(),
	}
	if err := h.publisher.Publish(context.Background(), ev, meta); err != nil {
		h.logger.Warn("publisher failed", zap.Error(err), zap.String("event", ev.Name))
	}
}

// registerLocked saves a versioned snapshot into h.registry, if
// configured. Caller must hold h.mu.
func (h *Host) registerLocked() {
	if h.registry == nil {
		return
	}
	version := primitives.VersionStamp(h.doc.Fingerprint(), time.Now())
	if err := h.registry.Register(context.Background(), h.sessionID, version, h.snapshotLocked()); err != nil {
		h.logger.Warn("registry failed", zap.Error(err), zap.String("version", version))
	}
}

// checkTerminalLocked must be called with h.mu held. It detects whether
// the root's final state has just been reached and, if so, resolves
// donedata and wakes any Wait callers.
func (h *Host) checkTerminalLocked() {
	idx, ok := core.IsInFinalOfRoot(h.doc, h.engine.Config)
	if !ok {
		return
	}
	final := h.doc.MustState(idx)
	var data any
	if resolver, ok := any(h.runner).(core.DoneDataResolver); ok {
		ectx := &primitives.EvalContext{Doc: h.doc, Datamodel: h.datamodel, SessionID: h.sessionID, Evaluator: h.engine.Evaluator}
		if d, err := resolver.ResolveDoneData(final, ectx); err == nil {
			data = d
		}
	}
	h.termMu.Lock()
	h.terminal = &Terminal{FinalStateID: final.ID, DoneData: data}
	h.termCond.Broadcast()
	h.termMu.Unlock()
	h.logger.Info("scxml instance reached final state", zap.String("state", final.ID))
}

// Send enqueues an external event for asynchronous processing and
// acknowledges acceptance; it does not wait for the event to be
// processed. Returns ErrNotRunning once the instance is terminal or
// stopped, ErrBackpressure if the inbox is full.
func (h *Host) Send(name string, data any) error {
	h.mu.RLock()
	running, stopped, terminal := h.running, h.stopped, h.terminal
	h.mu.RUnlock()
	if !running || stopped || terminal != nil {
		return ErrNotRunning
	}
	select {
	case h.inbox <- sendRequest{event: primitives.NewEvent(name, data)}:
		return nil
	default:
		return ErrBackpressure
	}
}

// ActiveAtomicStates returns the ids of the currently active atomic
// states, in document order.
func (h *Host) ActiveAtomicStates() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	atoms := core.SortedAtoms(h.doc, h.engine.Config)
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = h.doc.MustState(a).ID
	}
	return out
}

// ActiveWithAncestors returns the ids of the active atomic states together
// with every implicit ancestor (spec.md §6).
func (h *Host) ActiveWithAncestors() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	expanded := core.WithAncestors(h.doc, h.engine.Config)
	out := make([]string, 0, len(expanded))
	for idx := range expanded {
		out = append(out, h.doc.MustState(idx).ID)
	}
	return out
}

// Datamodel returns a defensive snapshot of the instance's current
// datamodel values.
func (h *Host) Datamodel() map[string]any {
	return h.datamodel.Snapshot()
}

// Terminal returns the terminal observation and true if the instance has
// reached a final descendant of the root.
func (h *Host) Terminal() (Terminal, bool) {
	h.termMu.Lock()
	defer h.termMu.Unlock()
	if h.terminal == nil {
		return Terminal{}, false
	}
	return *h.terminal, true
}

// Wait blocks until the instance reaches a terminal final state, the host
// is stopped, or ctx is cancelled, whichever comes first.
func (h *Host) Wait(ctx context.Context) (Terminal, bool) {
	result := make(chan Terminal, 1)
	stop := make(chan struct{})
	go func() {
		h.termMu.Lock()
		for h.terminal == nil {
			select {
			case <-stop:
				h.termMu.Unlock()
				return
			default:
			}
			h.termCond.Wait()
		}
		t := *h.terminal
		h.termMu.Unlock()
		result <- t
	}()
	select {
	case t := <-result:
		return t, true
	case <-ctx.Done():
	case <-h.done:
		if t, ok := h.Terminal(); ok {
			return t, true
		}
	}
	close(stop)
	h.termMu.Lock()
	h.termCond.Broadcast() // unstick the waiting goroutine
	h.termMu.Unlock()
	return Terminal{}, false
}

// Stop signals graceful shutdown: in-flight processing completes, no
// further sends are accepted, and pending delayed sends are drained.
// Safe to call multiple times.
func (h *Host) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()
	// Discard every delayed send still scheduled; none will fire now.
	h.runner.Scheduler.Due(1<<63 - 1)
	h.logger.Info("scxml instance stopped", zap.String("session", h.sessionID))
	return nil
}
