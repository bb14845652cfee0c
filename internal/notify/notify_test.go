package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderwatch/internal/domain"
)

func event(owner, id string, t domain.EventType) domain.Event {
	return domain.NewEvent(t, &domain.Order{ID: id, Owner: owner, Symbol: "AAPL"}, "")
}

func TestHubRoutesByOwner(t *testing.T) {
	ctx := context.Background()
	h := NewHub()

	aliceID, alice := h.Subscribe("alice", 4)
	_, bob := h.Subscribe("bob", 4)
	_, all := h.Subscribe("", 4)
	assert.Equal(t, 3, h.Subscribers())

	h.Send(ctx, "alice", event("alice", "o1", domain.EventFilled))

	got := <-alice
	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, domain.EventFilled, got.Type)
	assert.Len(t, bob, 0)
	assert.Len(t, all, 1)

	h.Unsubscribe(aliceID)
	_, open := <-alice
	assert.False(t, open, "channel closed on unsubscribe")
	assert.Equal(t, 2, h.Subscribers())
}

func TestHubDropsForSlowConsumer(t *testing.T) {
	ctx := context.Background()
	h := NewHub()
	_, ch := h.Subscribe("alice", 1)

	h.Send(ctx, "alice", event("alice", "o1", domain.EventUpdated))
	h.Send(ctx, "alice", event("alice", "o1", domain.EventUpdated))

	assert.Len(t, ch, 1)
	assert.Equal(t, int64(1), h.Dropped())
}

func TestMultiAndRecorder(t *testing.T) {
	ctx := context.Background()
	h := NewHub()
	_, ch := h.Subscribe("alice", 2)
	rec := &Recorder{}

	bus := Multi{h, rec}
	bus.Send(ctx, "alice", event("alice", "o1", domain.EventCreated))
	bus.Send(ctx, "alice", event("alice", "o1", domain.EventCancelled))

	require.Len(t, rec.Events(), 2)
	assert.Equal(t, 1, rec.Count("o1", domain.EventCancelled))
	assert.Len(t, rec.For("o2"), 0)
	assert.Len(t, ch, 2)
}
