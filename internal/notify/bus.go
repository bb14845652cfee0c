// Package notify delivers order events to their owners. Delivery is fire
// and forget: a failed or dropped notification never affects order state.
package notify

import (
	"context"

	"orderwatch/internal/domain"
)

// Bus pushes an event to the owner's sessions.
type Bus interface {
	Send(ctx context.Context, owner string, e domain.Event)
}

// Multi fans an event out to several buses in order.
type Multi []Bus

// Send delivers e to every bus.
func (m Multi) Send(ctx context.Context, owner string, e domain.Event) {
	for _, b := range m {
		b.Send(ctx, owner, e)
	}
}
