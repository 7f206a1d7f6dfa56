package publish

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/scxml/internal/primitives"
)

func TestChannelPublisherDelivery(t *testing.T) {
	ch := make(chan PublishedEvent, 10)
	p := NewChannelPublisher(ch)

	event := primitives.NewEvent("test-event", "data")
	meta := Metadata{SessionID: "s1", FromState: "idle", ToState: "running", Timestamp: time.Now()}

	require.NoError(t, p.Publish(context.Background(), event, meta))

	select {
	case got := <-ch:
		assert.Equal(t, event.Name, got.Event.Name)
		assert.Equal(t, meta.SessionID, got.Metadata.SessionID)
		assert.Equal(t, meta.ToState, got.Metadata.ToState)
	case <-time.After(100 * time.Millisecond):
		t.Error("no event delivered")
	}
}

func TestChannelPublisherBackpressureDrop(t *testing.T) {
	ch := make(chan PublishedEvent, 1)
	p := NewChannelPublisher(ch)
	ch <- PublishedEvent{}

	err := p.Publish(context.Background(), primitives.NewEvent("drop-test", nil), Metadata{SessionID: "s1"})
	assert.NoError(t, err)
}

func TestChannelPublisherClose(t *testing.T) {
	ch := make(chan PublishedEvent, 1)
	p := NewChannelPublisher(ch)
	assert.NoError(t, p.Close())
}
