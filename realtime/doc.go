// Package realtime provides a tick-based deterministic alternative to
// host.Host: instead of dispatching each external event as soon as the
// actor goroutine sees it, events are batched and applied at fixed tick
// boundaries in a deterministic order.
//
// # Example usage
//
//	doc, _ := scxml.Parse(r, scxml.ParseOptions{})
//	rt := realtime.NewRuntime(doc, evaluator, realtime.Config{
//		TickRate: 16667 * time.Microsecond, // 60 FPS
//	})
//	rt.Start(ctx)
//	rt.SendEvent(primitives.NewEvent("tick", nil))
//
// # Trade-offs vs host.Host
//
// host.Host dispatches each Send as soon as the actor goroutine picks it
// off the inbox channel: low latency, but the exact interleaving of
// concurrent senders is scheduler-dependent. Runtime instead collects
// every event that arrived since the last tick, orders them by priority
// then submission sequence, and applies them as one deterministic batch -
// the same sequence of SendEvent calls always produces the same
// configuration, independent of goroutine scheduling. That determinism
// costs latency: an event submitted just after a tick boundary waits a
// full tick before it is seen.
//
// # Use cases
//
// Game engines and physics simulations that already run their own fixed
// time-step loop and want the chart's configuration to change in lockstep
// with it; replay/record-and-playback tooling that needs bit-identical
// reruns of the same event sequence.
//
// Each tick runs every batched event through the same macrostep the
// event-driven host uses (internal/core.Engine.RunMacrostep): eventless
// transitions, parallel regions, and the internal event queue are
// drained to quiescence after every event exactly as host.Host does. A
// tick is a deterministically-ordered sequence of ordinary macrosteps,
// not a parallel pass of its own.
package realtime
