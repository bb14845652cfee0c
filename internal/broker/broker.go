// Package broker defines the Broker interface through which the execution
// engine turns a triggered order or slice into a fill, with Alpaca and
// simulator implementations.
package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// ExecutionRequest asks a broker for an immediate fill.
type ExecutionRequest struct {
	// ClientOrderID is unique per order and slice. Brokers use it to
	// recognise a repeated submission.
	ClientOrderID  string
	OrderID        string
	Slice          int
	Owner          string
	Symbol         string
	Side           domain.Side
	Quantity       decimal.Decimal
	ReferencePrice decimal.Decimal
}

// Broker abstracts trade execution.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// Execute fills req at market. A refusal is returned as an error
	// wrapping domain.ErrExecutionRejected. The returned fill may carry less
	// than the requested quantity.
	Execute(ctx context.Context, req ExecutionRequest) (domain.Fill, error)
}
