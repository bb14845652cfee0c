package engine

import (
	"context"
	"fmt"

	"orderwatch/internal/domain"
)

// Cancellation reasons recorded on siblings.
const (
	reasonSiblingFilled   = "sibling filled"
	reasonEntryCancelled  = "bracket entry cancelled"
	reasonEntryFailed     = "bracket entry failed"
	reasonOwnerCancelled  = "cancelled by owner"
	reasonGroupCancelled  = "group cancelled by owner"
	reasonScheduleElapsed = "schedule elapsed"
)

// sweepOCO evaluates pending OCO legs and repairs groups left half-done by
// an earlier sweep.
func (e *Engine) sweepOCO(ctx context.Context) error {
	orders, err := e.orders.ListOrders(ctx, domain.OrderFilter{
		Families: []domain.Family{domain.FamilyOCOStop, domain.FamilyOCOLimit},
		Statuses: []domain.Status{domain.StatusPending},
	})
	if err != nil {
		return fmt.Errorf("listing oco orders: %w", err)
	}
	e.fanOut(ctx, monitorOCO, orders, e.evaluateExitLeg)
	return nil
}

// evaluateExitLeg handles one OCO leg or armed bracket child: it cancels the
// leg when a sibling already filled, otherwise checks its own trigger and on
// fill cancels the rest of the group.
func (e *Engine) evaluateExitLeg(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error {
	group, err := e.orders.ListGroup(ctx, o.GroupID)
	if err != nil {
		return fmt.Errorf("listing group %s: %w", o.GroupID, err)
	}
	for _, s := range group {
		if s.ID != o.ID && isExitLeg(s.Family) && s.Status == domain.StatusFilled {
			e.cancelOne(ctx, o.ID, reasonSiblingFilled, o.Status)
			return nil
		}
	}

	q, err := quotes.get(ctx, o.Symbol)
	if err != nil {
		return err
	}
	if !o.Triggered(q.Price) {
		return nil
	}
	filled, err := e.fire(ctx, o, q, true)
	if err != nil {
		return err
	}
	// Any executed quantity has moved the position, so the other leg stands down.
	if filled || o.QuantityExecuted.IsPositive() {
		e.cancelSiblings(context.WithoutCancel(ctx), o, reasonSiblingFilled)
	}
	return nil
}

// sweepBracket drives bracket groups: pending entries are evaluated like
// limit orders, armed children like OCO legs, and pending children follow
// their entry's outcome.
func (e *Engine) sweepBracket(ctx context.Context) error {
	orders, err := e.orders.ListOrders(ctx, domain.OrderFilter{
		Families: []domain.Family{
			domain.FamilyBracketEntry, domain.FamilyBracketStop, domain.FamilyBracketTakeProfit,
		},
		Statuses: []domain.Status{domain.StatusPending, domain.StatusArmed},
	})
	if err != nil {
		return fmt.Errorf("listing bracket orders: %w", err)
	}
	e.fanOut(ctx, monitorBracket, orders, e.evaluateBracket)
	return nil
}

func (e *Engine) evaluateBracket(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error {
	switch {
	case o.Family == domain.FamilyBracketEntry:
		return e.evaluateEntry(ctx, o, quotes)
	case o.Status == domain.StatusArmed:
		return e.evaluateExitLeg(ctx, o, quotes)
	default:
		return e.reconcileChild(ctx, o)
	}
}

func (e *Engine) evaluateEntry(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error {
	q, err := quotes.get(ctx, o.Symbol)
	if err != nil {
		return err
	}
	if !o.Triggered(q.Price) {
		return nil
	}
	filled, err := e.fire(ctx, o, q, false)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	if filled {
		e.armChildren(ctx, o)
		return nil
	}
	e.cancelChildren(ctx, o, reasonEntryFailed)
	return nil
}

// reconcileChild settles a pending child whose entry reached a terminal
// status without the follow-up being applied.
func (e *Engine) reconcileChild(ctx context.Context, o *domain.Order) error {
	entry, err := e.orders.GetOrder(ctx, o.ParentID)
	if err != nil {
		return fmt.Errorf("loading bracket entry %s: %w", o.ParentID, err)
	}
	switch entry.Status {
	case domain.StatusFilled:
		e.armOne(ctx, o.ID)
	case domain.StatusCancelled:
		e.cancelOne(ctx, o.ID, reasonEntryCancelled, domain.StatusPending)
	case domain.StatusFailed:
		e.cancelOne(ctx, o.ID, reasonEntryFailed, domain.StatusPending)
	}
	return nil
}

// armChildren moves the pending children of a filled entry to armed.
func (e *Engine) armChildren(ctx context.Context, entry *domain.Order) {
	group, err := e.orders.ListGroup(ctx, entry.GroupID)
	if err != nil {
		orderLog(e.log, entry).Error("listing bracket children", "error", err)
		return
	}
	for _, c := range group {
		if c.ParentID == entry.ID {
			e.armOne(ctx, c.ID)
		}
	}
}

func (e *Engine) armOne(ctx context.Context, id string) {
	c, err := e.orders.CompareAndSwapStatus(ctx, id,
		[]domain.Status{domain.StatusPending}, domain.StatusArmed, "")
	if err != nil {
		return
	}
	e.log.Info("bracket leg armed", "order_id", c.ID, "family", c.Family, "group_id", c.GroupID)
	e.emit(ctx, domain.EventArmed, c, "entry filled")
}

// cancelChildren cancels the un-armed children of entry.
func (e *Engine) cancelChildren(ctx context.Context, entry *domain.Order, reason string) []domain.Order {
	group, err := e.orders.ListGroup(ctx, entry.GroupID)
	if err != nil {
		orderLog(e.log, entry).Error("listing bracket children", "error", err)
		return nil
	}
	var out []domain.Order
	for _, c := range group {
		if c.ParentID != entry.ID {
			continue
		}
		if cancelled, ok := e.cancelOne(ctx, c.ID, reason, domain.StatusPending); ok {
			out = append(out, *cancelled)
		}
	}
	return out
}
