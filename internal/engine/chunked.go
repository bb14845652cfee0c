package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// quantityScale is the number of decimal places kept for slice sizes.
const quantityScale = 8

// sweepIceberg executes one visible slice of every working iceberg order.
func (e *Engine) sweepIceberg(ctx context.Context) error {
	orders, err := e.orders.ListOrders(ctx, domain.OrderFilter{
		Families: []domain.Family{domain.FamilyIceberg},
		Statuses: []domain.Status{domain.StatusPending, domain.StatusPartiallyFilled},
	})
	if err != nil {
		return fmt.Errorf("listing iceberg orders: %w", err)
	}
	e.fanOut(ctx, monitorIceberg, orders, e.evaluateIceberg)
	return nil
}

func (e *Engine) evaluateIceberg(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error {
	qty := decimal.Min(o.VisibleQuantity.Decimal, o.Remaining())
	if !qty.IsPositive() {
		return nil
	}
	q, err := quotes.get(ctx, o.Symbol)
	if err != nil {
		return err
	}
	return e.executeSlice(ctx, o, q, qty)
}

// sweepSchedule advances TWAP and VWAP orders by one slot, then records the
// interval volumes seen so later VWAP slices can weigh against them.
func (e *Engine) sweepSchedule(ctx context.Context) error {
	orders, err := e.orders.ListOrders(ctx, domain.OrderFilter{
		Families: []domain.Family{domain.FamilyTWAP, domain.FamilyVWAP},
		Statuses: []domain.Status{domain.StatusPending, domain.StatusPartiallyFilled},
	})
	if err != nil {
		return fmt.Errorf("listing scheduled orders: %w", err)
	}
	quotes := e.fanOut(ctx, monitorSchedule, orders, e.evaluateScheduled)
	for _, q := range quotes.observed() {
		e.volumes.Observe(q.Symbol, q.Volume)
	}
	return nil
}

func (e *Engine) scheduleInterval() time.Duration {
	if e.opts.ScheduleInterval > 0 {
		return e.opts.ScheduleInterval
	}
	return DefaultOptions().ScheduleInterval
}

func (e *Engine) evaluateScheduled(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error {
	interval := e.scheduleInterval()
	elapsed := e.now().Sub(o.CreatedAt)
	if elapsed >= o.Duration+interval {
		return e.expire(ctx, o)
	}

	slots := slotCount(o.Duration, interval)
	slot := currentSlot(elapsed, interval, slots)
	if o.Family == domain.FamilyVWAP && o.SlicesExecuted >= slot {
		return nil
	}

	q, err := quotes.get(ctx, o.Symbol)
	if err != nil {
		return err
	}

	remaining := o.Remaining()
	var qty decimal.Decimal
	switch {
	case slot == slots:
		qty = remaining
	case o.Family == domain.FamilyTWAP:
		qty = twapTarget(o.Quantity, slot, slots).Sub(o.QuantityExecuted)
	default:
		qty = vwapSlice(remaining, q.Volume, e.volumes.Average(o.Symbol), slots-slot)
	}
	if qty.GreaterThan(remaining) {
		qty = remaining
	}
	if !qty.IsPositive() {
		return nil
	}
	return e.executeSlice(ctx, o, q, qty)
}

// expire fails a scheduled order whose window and grace interval have
// passed with quantity still unexecuted.
func (e *Engine) expire(ctx context.Context, o *domain.Order) error {
	reason := fmt.Sprintf("%s: %s of %s unexecuted", reasonScheduleElapsed, o.Remaining(), o.Quantity)
	f, err := e.orders.CompareAndSwapStatus(ctx, o.ID,
		[]domain.Status{domain.StatusPending, domain.StatusPartiallyFilled}, domain.StatusFailed, reason)
	if err != nil {
		return err
	}
	orderLog(e.log, f).Warn("schedule elapsed", "quantity_executed", f.QuantityExecuted, "quantity", f.Quantity)
	e.emit(ctx, domain.EventFailed, f, reason)
	return nil
}

// executeSlice claims o, executes qty and releases it as partially filled or
// filled. A rejected slice hands the order back in its previous working
// status so the shortfall is picked up next tick.
func (e *Engine) executeSlice(ctx context.Context, o *domain.Order, q domain.Quote, qty decimal.Decimal) error {
	prev := o.Status
	if err := e.claim(ctx, o); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	log := orderLog(e.log, o)
	slice := o.SlicesExecuted + 1

	fill, err := e.execute(ctx, o, slice, qty, q.Price)
	if err != nil {
		o.Status = prev
		o.Reason = err.Error()
		if serr := e.save(ctx, o); serr != nil {
			return fmt.Errorf("releasing after failed slice: %w", serr)
		}
		e.metrics.execution(o.Family, "rejected")
		log.Warn("slice failed; retrying next tick", "slice", slice, "quantity", qty, "error", err)
		return nil
	}

	o.ApplyFill(fill.Quantity, fill.Price)
	o.Reason = ""
	event := domain.EventPartiallyFilled
	o.Status = domain.StatusPartiallyFilled
	if o.Remaining().IsZero() {
		event = domain.EventFilled
		o.Status = domain.StatusFilled
	}
	if err := e.save(ctx, o); err != nil {
		return fmt.Errorf("recording slice %d: %w", slice, err)
	}
	e.metrics.execution(o.Family, "filled")
	e.record(fill)
	log.Info("slice executed",
		"slice", slice,
		"quantity", fill.Quantity,
		"price", fill.Price,
		"quantity_executed", o.QuantityExecuted,
		"quantity_total", o.Quantity,
	)
	e.emit(ctx, event, o, fmt.Sprintf("slice %d: %s @ %s", slice, fill.Quantity, fill.Price))
	return nil
}

// slotCount returns the number of schedule slots for duration.
func slotCount(duration, interval time.Duration) int {
	n := int(duration / interval)
	if duration%interval != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// currentSlot returns the 1-based slot elapsed falls in, capped at slots.
func currentSlot(elapsed, interval time.Duration, slots int) int {
	if elapsed < 0 {
		elapsed = 0
	}
	k := int(elapsed/interval) + 1
	if k > slots {
		k = slots
	}
	return k
}

// twapTarget is the cumulative quantity due by the end of slot k of n.
func twapTarget(qty decimal.Decimal, k, n int) decimal.Decimal {
	if k >= n {
		return qty
	}
	return qty.Mul(decimal.NewFromInt(int64(k))).
		Div(decimal.NewFromInt(int64(n))).
		Truncate(quantityScale)
}

// vwapSlice sizes a slice as remaining × v / (v + avg × after), where after
// is the number of slots left once this one is done. Without volume history
// the remainder is split evenly; without current volume nothing trades.
func vwapSlice(remaining, volume, avg decimal.Decimal, after int) decimal.Decimal {
	if after <= 0 {
		return remaining
	}
	if !volume.IsPositive() {
		return decimal.Zero
	}
	if !avg.IsPositive() {
		return remaining.Div(decimal.NewFromInt(int64(after + 1))).Truncate(quantityScale)
	}
	expected := avg.Mul(decimal.NewFromInt(int64(after)))
	return remaining.Mul(volume).Div(volume.Add(expected)).Truncate(quantityScale)
}
