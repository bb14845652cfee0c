package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// CancelOrder cancels the owner's order and, for composite families, the
// siblings the cancellation implies. The returned slice holds every order
// this call cancelled, the requested one first. An order owned by someone
// else is reported as not found.
func (e *Engine) CancelOrder(ctx context.Context, owner, id string) ([]domain.Order, error) {
	o, err := e.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && o.Owner != owner {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	from := []domain.Status{domain.StatusPending, domain.StatusArmed}
	if o.Family.Chunked() {
		from = append(from, domain.StatusPartiallyFilled)
	}
	c, err := e.orders.CompareAndSwapStatus(ctx, id, from, domain.StatusCancelled, reasonOwnerCancelled)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			status := o.Status
			if c != nil {
				status = c.Status
			}
			return nil, fmt.Errorf("%w: order %s is %s", domain.ErrNotCancellable, id, status)
		}
		return nil, fmt.Errorf("cancelling %s: %w", id, err)
	}
	e.log.Info("order cancelled", "order_id", c.ID, "family", c.Family, "owner", c.Owner,
		"quantity_executed", c.QuantityExecuted)
	e.emit(ctx, domain.EventCancelled, c, reasonOwnerCancelled)

	out := []domain.Order{*c}
	switch {
	case c.Family == domain.FamilyBracketEntry:
		out = append(out, e.cancelChildren(ctx, c, reasonEntryCancelled)...)
	case c.Family.Composite():
		out = append(out, e.cancelSiblings(ctx, c, reasonGroupCancelled)...)
	}
	return out, nil
}

// UpdateTrailingStop replaces the stop of a pending trailing-stop order. The
// new stop is not bound by the ratchet direction.
func (e *Engine) UpdateTrailingStop(ctx context.Context, id string, newStop decimal.Decimal) (*domain.Order, error) {
	if !newStop.IsPositive() {
		return nil, domain.Invalidf("stop_price must be positive")
	}

	// A concurrent ratchet may bump the version between read and write.
	for attempt := 0; attempt < 3; attempt++ {
		o, err := e.orders.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.Family != domain.FamilyTrailingStop {
			return nil, domain.Invalidf("order %s is %s, not trailing_stop", id, o.Family)
		}
		if o.Status != domain.StatusPending {
			return nil, fmt.Errorf("%w: order %s is %s", domain.ErrNotCancellable, id, o.Status)
		}

		prev := o.StopPrice.Decimal
		o.StopPrice = decimal.NewNullDecimal(newStop)
		err = e.orders.UpdateOrder(ctx, o)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("updating %s: %w", id, err)
		}
		orderLog(e.log, o).Info("trailing stop replaced", "from", prev, "to", newStop)
		e.emit(ctx, domain.EventUpdated, o, fmt.Sprintf("stop set to %s", newStop))
		return o, nil
	}
	return nil, fmt.Errorf("updating %s: %w", id, domain.ErrConflict)
}
