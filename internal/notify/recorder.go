package notify

import (
	"context"
	"sync"

	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ Bus = (*Recorder)(nil)

// Recorder keeps every event it receives in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Send appends e.
func (r *Recorder) Send(_ context.Context, _ string, e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// For returns the recorded events for one order.
func (r *Recorder) For(orderID string) []domain.Event {
	var out []domain.Event
	for _, e := range r.Events() {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of type t were recorded for orderID.
func (r *Recorder) Count(orderID string, t domain.EventType) int {
	n := 0
	for _, e := range r.For(orderID) {
		if e.Type == t {
			n++
		}
	}
	return n
}
