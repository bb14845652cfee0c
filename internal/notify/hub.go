package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ Bus = (*Hub)(nil)

// Hub is an in-process pub/sub of order events keyed by owner. Subscribers
// with an empty owner receive every event.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscriber

	dropped atomic.Int64
}

type subscriber struct {
	owner string
	ch    chan domain.Event
}

// NewHub creates a Hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe returns a channel that receives events for owner. bufSize
// controls the channel buffer; slow consumers will have events dropped.
func (h *Hub) Subscribe(owner string, bufSize int) (int, <-chan domain.Event) {
	ch := make(chan domain.Event, bufSize)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = subscriber{owner: owner, ch: ch}
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
	h.mu.Unlock()
}

// Send delivers e to the owner's subscribers without blocking.
func (h *Hub) Send(_ context.Context, owner string, e domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.owner != "" && s.owner != owner {
			continue
		}
		select {
		case s.ch <- e:
		default:
			// Slow consumer, drop event.
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were dropped for slow consumers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
