package realtime

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/scxml/internal/core"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/production/publish"
)

// processTick applies one tick's worth of batched events, plus any
// delayed <send> timers that came due since the last tick, in
// deterministic order. Each event runs a full macrostep
// (internal/core.Engine.RunMacrostep): eventless transitions, parallel
// regions, and the internal queue are drained to quiescence before the
// next event in the batch is applied, exactly as host.Host processes one
// external event - a tick is just a deterministically-ordered sequence of
// those.
//
// Anything an InvokeHandler's send callback pushed onto the engine's
// external queue between ticks (from a goroutine of its own, outside this
// tick's batch entirely) is strictly older than anything newly submitted
// this tick, so it's drained and applied first, in its own FIFO order,
// ahead of the tick's sorted batch.
func (rt *Runtime) processTick() {
	for {
		rt.mu.Lock()
		if rt.termSet {
			rt.mu.Unlock()
			return
		}
		ev, ok := rt.engine.Queues.PopExternal()
		if !ok {
			rt.mu.Unlock()
			break
		}
		err := rt.runMacrostepLocked(ev)
		rt.mu.Unlock()
		if err != nil {
			rt.logger.Error("realtime macrostep failed", zap.Error(err), zap.String("event", ev.Name))
		}
	}

	events := rt.collectEvents()
	due := rt.runner.Scheduler.Due(time.Now().UnixNano())
	for _, ds := range due {
		events = append(events, EventWithMeta{Event: ds.Event, SequenceNum: rt.nextSeq(), Priority: 0})
	}
	sortEvents(events)

	for _, em := range events {
		rt.mu.Lock()
		if rt.termSet {
			rt.mu.Unlock()
			break
		}
		err := rt.runMacrostepLocked(em.Event)
		rt.mu.Unlock()
		if err != nil {
			rt.logger.Error("realtime macrostep failed", zap.Error(err), zap.String("event", em.Event.Name))
		}
	}
}

// runMacrostepLocked applies ev, then drains any event it pushed onto the
// external queue synchronously (a self-targeted immediate <send>, or an
// invoke handler's send callback invoked inline from Start) through
// further macrosteps before returning, mirroring host.Host.process. Caller
// must hold rt.mu.
func (rt *Runtime) runMacrostepLocked(ev primitives.Event) error {
	for {
		fromState := rt.activeAtomicStatesLocked()
		done, err := rt.engine.RunMacrostep(rt.datamodel, rt.sessionID, ev)
		if err != nil {
			return err
		}
		rt.publishLocked(ev, fromState, rt.activeAtomicStatesLocked())
		if done {
			rt.checkTerminalLocked()
			return nil
		}
		next, ok := rt.engine.Queues.PopExternal()
		if !ok {
			return nil
		}
		ev = next
	}
}

// activeAtomicStatesLocked is ActiveAtomicStates for a caller already
// holding rt.mu.
func (rt *Runtime) activeAtomicStatesLocked() []string {
	atoms := core.SortedAtoms(rt.doc, rt.engine.Config)
	out := make([]string, len(atoms))
	for i, a := range atoms {
		out[i] = rt.doc.MustState(a).ID
	}
	return out
}

// publishLocked notifies rt.publisher, if configured, of ev and the
// active-state transition it drove. Caller must hold rt.mu.
func (rt *Runtime) publishLocked(ev primitives.Event, from, to []string) {
	if rt.publisher == nil {
		return
	}
	meta := publish.Metadata{
		SessionID: rt.sessionID,
		FromState: strings.Join(from, ","),
		ToState:   strings.Join(to, ","),
		Timestamp: time.Now(),
	}
	if err := rt.publisher.Publish(context.Background(), ev, meta); err != nil {
		rt.logger.Warn("publisher failed", zap.Error(err), zap.String("event", ev.Name))
	}
}

// collectEvents atomically retrieves and clears the pending event batch.
func (rt *Runtime) collectEvents() []EventWithMeta {
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()
	events := rt.eventBatch
	rt.eventBatch = make([]EventWithMeta, 0, cap(rt.eventBatch))
	return events
}

// nextSeq assigns a sequence number to a delayed send folded into the
// current tick, after every explicitly-sent event already in the batch.
func (rt *Runtime) nextSeq() uint64 {
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()
	rt.sequenceNum++
	return rt.sequenceNum
}
