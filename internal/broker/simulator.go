package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for paper trading. It
// fills every request at its reference price and tracks net positions in
// memory without making external API calls.
type SimulatorBroker struct {
	mu        sync.Mutex
	positions map[string]decimal.Decimal
	fills     []domain.Fill
	seen      map[string]bool
	rejected  map[string]string
	failNext  int
	fillLimit decimal.Decimal
	latency   time.Duration
}

// NewSimulatorBroker creates a new SimulatorBroker with no positions.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{
		positions: make(map[string]decimal.Decimal),
		seen:      make(map[string]bool),
		rejected:  make(map[string]string),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Reject makes every execution for symbol fail with reason. An empty reason
// clears the rejection.
func (b *SimulatorBroker) Reject(symbol, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	if reason == "" {
		delete(b.rejected, symbol)
		return
	}
	b.rejected[symbol] = reason
}

// FailNext makes the next n executions fail.
func (b *SimulatorBroker) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
}

// SetFillLimit caps the quantity of every fill at qty. Zero removes the cap.
func (b *SimulatorBroker) SetFillLimit(qty decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillLimit = qty
}

// SetLatency delays every execution by d.
func (b *SimulatorBroker) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

// Execute fills req at its reference price.
func (b *SimulatorBroker) Execute(ctx context.Context, req ExecutionRequest) (domain.Fill, error) {
	b.mu.Lock()
	latency := b.latency
	b.mu.Unlock()
	if latency > 0 {
		select {
		case <-ctx.Done():
			return domain.Fill{}, ctx.Err()
		case <-time.After(latency):
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seen[req.ClientOrderID] {
		return domain.Fill{}, domain.Rejectedf("duplicate client order id %s", req.ClientOrderID)
	}
	if reason, ok := b.rejected[strings.ToUpper(req.Symbol)]; ok {
		return domain.Fill{}, domain.Rejectedf("%s", reason)
	}
	if b.failNext > 0 {
		b.failNext--
		return domain.Fill{}, domain.Rejectedf("simulated failure")
	}
	if !req.Quantity.IsPositive() {
		return domain.Fill{}, domain.Rejectedf("quantity %s must be positive", req.Quantity)
	}
	if !req.ReferencePrice.IsPositive() {
		return domain.Fill{}, domain.Rejectedf("no reference price for %s", req.Symbol)
	}
	b.seen[req.ClientOrderID] = true

	qty := req.Quantity
	if b.fillLimit.IsPositive() && qty.GreaterThan(b.fillLimit) {
		qty = b.fillLimit
	}
	delta := qty
	if req.Side == domain.SideSell {
		delta = delta.Neg()
	}
	b.positions[req.Symbol] = b.positions[req.Symbol].Add(delta)

	fill := domain.Fill{
		OrderID:   req.OrderID,
		Slice:     req.Slice,
		BrokerID:  fmt.Sprintf("sim-%d", len(b.fills)+1),
		Owner:     req.Owner,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  qty,
		Price:     req.ReferencePrice,
		Timestamp: time.Now().UTC(),
	}
	b.fills = append(b.fills, fill)
	return fill, nil
}

// Fills returns a copy of every fill produced so far.
func (b *SimulatorBroker) Fills() []domain.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Fill, len(b.fills))
	copy(out, b.fills)
	return out
}

// Position returns the simulated net position for symbol.
func (b *SimulatorBroker) Position(symbol string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[strings.ToUpper(symbol)]
}
