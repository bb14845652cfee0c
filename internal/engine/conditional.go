package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// sweepConditional evaluates pending stop-loss and take-profit orders.
func (e *Engine) sweepConditional(ctx context.Context) error {
	orders, err := e.orders.ListOrders(ctx, domain.OrderFilter{
		Families: []domain.Family{domain.FamilyStopLoss, domain.FamilyTakeProfit},
		Statuses: []domain.Status{domain.StatusPending},
	})
	if err != nil {
		return fmt.Errorf("listing conditional orders: %w", err)
	}
	e.fanOut(ctx, monitorConditional, orders, e.evaluateConditional)
	return nil
}

func (e *Engine) evaluateConditional(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error {
	q, err := quotes.get(ctx, o.Symbol)
	if err != nil {
		return err
	}
	if !o.Triggered(q.Price) {
		return nil
	}
	_, err = e.fire(ctx, o, q, false)
	return err
}

// sweepTrailing ratchets and evaluates pending trailing stops.
func (e *Engine) sweepTrailing(ctx context.Context) error {
	orders, err := e.orders.ListOrders(ctx, domain.OrderFilter{
		Families: []domain.Family{domain.FamilyTrailingStop},
		Statuses: []domain.Status{domain.StatusPending},
	})
	if err != nil {
		return fmt.Errorf("listing trailing orders: %w", err)
	}
	e.fanOut(ctx, monitorTrailing, orders, e.evaluateTrailing)
	return nil
}

// evaluateTrailing moves the stop in the holder's favor before checking the
// trigger against the same price.
func (e *Engine) evaluateTrailing(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error {
	q, err := quotes.get(ctx, o.Symbol)
	if err != nil {
		return err
	}
	if stop, moved := o.Ratchet(q.Price); moved {
		prev := o.StopPrice
		o.StopPrice = decimal.NewNullDecimal(stop)
		if err := e.orders.UpdateOrder(ctx, o); err != nil {
			return err
		}
		orderLog(e.log, o).Debug("trailing stop moved", "price", q.Price, "from", prev.Decimal, "to", stop)
		e.emit(ctx, domain.EventUpdated, o, fmt.Sprintf("stop moved to %s", stop))
	}
	if !o.Triggered(q.Price) {
		return nil
	}
	_, err = e.fire(ctx, o, q, false)
	return err
}
