package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"orderwatch/internal/broker"
	"orderwatch/internal/domain"
	"orderwatch/internal/util"
)

// claim moves o to triggered if nobody has written it since the snapshot.
// It returns domain.ErrConflict when another writer got there first.
func (e *Engine) claim(ctx context.Context, o *domain.Order) error {
	o.Status = domain.StatusTriggered
	return e.orders.UpdateOrder(ctx, o)
}

// release hands a claimed order back to status without executing.
func (e *Engine) release(ctx context.Context, o *domain.Order, status domain.Status) {
	o.Status = status
	if err := e.save(ctx, o); err != nil {
		orderLog(e.log, o).Error("releasing claim", "status", status, "error", err)
	}
}

// save persists a claimed order. The claim guarantees a single writer, so a
// failure here is a store problem and is retried briefly.
func (e *Engine) save(ctx context.Context, o *domain.Order) error {
	return util.Retry(ctx, 3, 100*time.Millisecond, func() error {
		err := e.orders.UpdateOrder(ctx, o)
		if errors.Is(err, domain.ErrConflict) {
			return util.Permanent(err)
		}
		return err
	})
}

// execute submits one slice of o to the broker under the execution timeout.
func (e *Engine) execute(ctx context.Context, o *domain.Order, slice int, qty, ref decimal.Decimal) (domain.Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ExecutionTimeout)
	defer cancel()

	fill, err := e.broker.Execute(ctx, broker.ExecutionRequest{
		ClientOrderID:  clientOrderID(o, slice),
		OrderID:        o.ID,
		Slice:          slice,
		Owner:          o.Owner,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Quantity:       qty,
		ReferencePrice: ref,
	})
	if err != nil {
		return domain.Fill{}, fmt.Errorf("executing %s %s %s: %w", o.Side, qty, o.Symbol, err)
	}
	if fill.Quantity.GreaterThan(qty) {
		fill.Quantity = qty
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = e.now()
	}
	fill.OrderID, fill.Slice, fill.Owner = o.ID, slice, o.Owner
	return fill, nil
}

// fire claims a single-shot order, executes its full quantity and records
// the terminal outcome. Exclusive orders belong to an OCO-style group and
// back off when a sibling has already been claimed. It reports whether the
// order filled completely; a short fill leaves the order failed with its
// executed quantity recorded.
func (e *Engine) fire(ctx context.Context, o *domain.Order, q domain.Quote, exclusive bool) (bool, error) {
	prev := o.Status
	if err := e.claim(ctx, o); err != nil {
		return false, err
	}
	// The order is ours from here on; finish it even during shutdown.
	ctx = context.WithoutCancel(ctx)
	log := orderLog(e.log, o)

	if exclusive {
		taken, err := e.siblingTaken(ctx, o)
		if err != nil || taken {
			e.release(ctx, o, prev)
			if taken {
				log.Debug("sibling already claimed; standing down")
			}
			return false, err
		}
	}

	log.Info("order triggered",
		"side", o.Side,
		"price", q.Price,
		"trigger", triggerLevel(o),
		"quantity", o.Quantity,
	)

	fill, err := e.execute(ctx, o, 1, o.Quantity, q.Price)
	if err != nil {
		o.Status = domain.StatusFailed
		o.Reason = err.Error()
		if serr := e.save(ctx, o); serr != nil {
			return false, fmt.Errorf("recording failure: %w", serr)
		}
		e.metrics.execution(o.Family, "rejected")
		log.Warn("execution failed", "error", err)
		e.emit(ctx, domain.EventFailed, o, o.Reason)
		return false, nil
	}

	o.ApplyFill(fill.Quantity, fill.Price)
	if o.QuantityExecuted.LessThan(o.Quantity) {
		// Single-shot orders are not resubmitted; the shortfall is terminal.
		o.Status = domain.StatusFailed
		o.Reason = fmt.Sprintf("partially filled: %s of %s", o.QuantityExecuted, o.Quantity)
		if err := e.save(ctx, o); err != nil {
			return false, fmt.Errorf("recording partial fill: %w", err)
		}
		e.metrics.execution(o.Family, "partial")
		e.record(fill)
		log.Warn("order partially filled", "quantity", fill.Quantity, "requested", o.Quantity, "price", fill.Price, "broker_id", fill.BrokerID)
		e.emit(ctx, domain.EventFailed, o, o.Reason)
		return false, nil
	}
	o.Status = domain.StatusFilled
	o.Reason = ""
	if err := e.save(ctx, o); err != nil {
		return false, fmt.Errorf("recording fill: %w", err)
	}
	e.metrics.execution(o.Family, "filled")
	e.record(fill)
	log.Info("order filled", "quantity", fill.Quantity, "price", fill.Price, "broker_id", fill.BrokerID)
	e.emit(ctx, domain.EventFilled, o, "")
	return true, nil
}

// siblingTaken reports whether another member of o's group has been claimed
// or filled. Combined with claiming o first, at most one member of a group
// proceeds to execution.
func (e *Engine) siblingTaken(ctx context.Context, o *domain.Order) (bool, error) {
	group, err := e.orders.ListGroup(ctx, o.GroupID)
	if err != nil {
		return false, fmt.Errorf("listing group %s: %w", o.GroupID, err)
	}
	for _, s := range group {
		if s.ID == o.ID || !isExitLeg(s.Family) {
			continue
		}
		if s.Status == domain.StatusTriggered || s.Status == domain.StatusFilled {
			return true, nil
		}
	}
	return false, nil
}

// cancelSiblings cancels every pending or armed member of o's group except
// o itself. Siblings already claimed are left alone.
func (e *Engine) cancelSiblings(ctx context.Context, o *domain.Order, reason string) []domain.Order {
	group, err := e.orders.ListGroup(ctx, o.GroupID)
	if err != nil {
		orderLog(e.log, o).Error("listing group for cancellation", "error", err)
		return nil
	}
	var out []domain.Order
	for _, s := range group {
		if s.ID == o.ID {
			continue
		}
		if c, ok := e.cancelOne(ctx, s.ID, reason, domain.StatusPending, domain.StatusArmed); ok {
			out = append(out, *c)
		}
	}
	return out
}

// cancelOne moves id to cancelled if its status is one of from, emitting
// the terminal event on success.
func (e *Engine) cancelOne(ctx context.Context, id, reason string, from ...domain.Status) (*domain.Order, bool) {
	c, err := e.orders.CompareAndSwapStatus(ctx, id, from, domain.StatusCancelled, reason)
	if err != nil {
		return nil, false
	}
	e.log.Info("order cancelled", "order_id", c.ID, "family", c.Family, "reason", reason)
	e.emit(ctx, domain.EventCancelled, c, reason)
	return c, true
}

// isExitLeg reports whether f competes with its siblings for execution.
func isExitLeg(f domain.Family) bool {
	switch f {
	case domain.FamilyOCOStop, domain.FamilyOCOLimit,
		domain.FamilyBracketStop, domain.FamilyBracketTakeProfit:
		return true
	}
	return false
}

// triggerLevel returns the price o was waiting for, for logging.
func triggerLevel(o *domain.Order) string {
	if o.StopPrice.Valid {
		return o.StopPrice.Decimal.String()
	}
	if o.LimitPrice.Valid {
		return o.LimitPrice.Decimal.String()
	}
	return ""
}
