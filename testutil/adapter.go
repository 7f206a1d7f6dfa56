// Package testutil adapts host.Host and realtime.Runtime to a single
// interface so the same test logic can be run against both: event-driven
// dispatch and fixed-tick batching should agree on every chart's
// observable behavior, only differing in latency.
package testutil

import (
	"context"
	"time"

	"github.com/comalice/scxml/host"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/realtime"
)

// RuntimeAdapter provides a common interface for both the event-driven
// host and the tick-based runtime, letting one test body exercise both.
type RuntimeAdapter interface {
	Start(ctx context.Context) error
	Stop() error
	SendEvent(name string, data any) error
	IsInState(stateID string) bool
	ActiveAtomicStates() []string
	WaitForStability(timeout time.Duration) error
}

// EventDrivenAdapter wraps host.Host.
type EventDrivenAdapter struct {
	h *host.Host
}

// NewEventDrivenAdapter wraps a Host built by the caller (so callers
// retain control over evaluator and Options).
func NewEventDrivenAdapter(doc *primitives.Document, evaluator primitives.Evaluator, opts ...host.Option) *EventDrivenAdapter {
	return &EventDrivenAdapter{h: host.New(doc, evaluator, opts...)}
}

func (a *EventDrivenAdapter) Start(ctx context.Context) error { return a.h.Start(ctx) }
func (a *EventDrivenAdapter) Stop() error                     { return a.h.Stop() }

func (a *EventDrivenAdapter) SendEvent(name string, data any) error {
	return a.h.Send(name, data)
}

func (a *EventDrivenAdapter) IsInState(stateID string) bool {
	for _, id := range a.h.ActiveAtomicStates() {
		if id == stateID {
			return true
		}
	}
	return false
}

func (a *EventDrivenAdapter) ActiveAtomicStates() []string { return a.h.ActiveAtomicStates() }

func (a *EventDrivenAdapter) WaitForStability(timeout time.Duration) error {
	// The actor goroutine applies a macrostep to completion before
	// returning to its select loop; a small settle delay covers the
	// window between Send returning and that goroutine picking it up.
	time.Sleep(5 * time.Millisecond)
	return nil
}

// TickBasedAdapter wraps realtime.Runtime.
type TickBasedAdapter struct {
	rt       *realtime.Runtime
	tickRate time.Duration
}

// NewTickBasedAdapter wraps a Runtime built around doc at the given tick
// rate.
func NewTickBasedAdapter(doc *primitives.Document, evaluator primitives.Evaluator, tickRate time.Duration) *TickBasedAdapter {
	return &TickBasedAdapter{
		rt:       realtime.NewRuntime(doc, evaluator, realtime.Config{TickRate: tickRate}),
		tickRate: tickRate,
	}
}

func (a *TickBasedAdapter) Start(ctx context.Context) error { return a.rt.Start(ctx) }
func (a *TickBasedAdapter) Stop() error                     { return a.rt.Stop() }

func (a *TickBasedAdapter) SendEvent(name string, data any) error {
	return a.rt.SendEvent(primitives.NewEvent(name, data))
}

func (a *TickBasedAdapter) IsInState(stateID string) bool {
	for _, id := range a.rt.ActiveAtomicStates() {
		if id == stateID {
			return true
		}
	}
	return false
}

func (a *TickBasedAdapter) ActiveAtomicStates() []string { return a.rt.ActiveAtomicStates() }

func (a *TickBasedAdapter) WaitForStability(timeout time.Duration) error {
	// An event sent just after a tick boundary waits a full tick before
	// it's even seen, so allow for one extra tick beyond the rate.
	time.Sleep(a.tickRate + 5*time.Millisecond)
	return nil
}
