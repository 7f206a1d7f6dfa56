// Package publish defines the Publisher observer interface and a
// channel-backed implementation. Split out from internal/production
// (which persists/visualizes host.Snapshot and so must import the host
// package) because both host.Host and realtime.Runtime need to depend on
// Publisher themselves to notify it from inside a running instance -
// importing internal/production there would cycle back through
// persister.go's host.Snapshot dependency.
package publish

import (
	"context"
	"time"

	"github.com/comalice/scxml/internal/primitives"
)

// Metadata describes the instance context an event was observed in,
// alongside the event itself.
type Metadata struct {
	SessionID string
	FromState string
	ToState   string
	Timestamp time.Time
}

// PublishedEvent bundles an event with its instance metadata for
// publishing to an external subscriber.
type PublishedEvent struct {
	Event    primitives.Event
	Metadata Metadata
}

// Publisher observes events a running instance applies, alongside the
// active-state transition each one drove. host.Host and realtime.Runtime
// each call Publish once per processed macrostep event when one is
// configured (host.WithPublisher, realtime.Config.Publisher).
type Publisher interface {
	Publish(ctx context.Context, event primitives.Event, metadata Metadata) error
}

// ChannelPublisher forwards events to a Go channel, non-blocking with drop
// on backpressure — a host observing its own macrosteps can wire this in
// without ever stalling interpretation on a slow subscriber.
type ChannelPublisher struct {
	ch chan<- PublishedEvent
}

// NewChannelPublisher creates a ChannelPublisher with the given output
// channel.
func NewChannelPublisher(ch chan<- PublishedEvent) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event primitives.Event, metadata Metadata) error {
	select {
	case p.ch <- PublishedEvent{Event: event, Metadata: metadata}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}
