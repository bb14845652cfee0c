// Package marketdata provides the price oracle consumed by the execution
// engine: latest trade price and interval volume per symbol.
package marketdata

import (
	"context"

	"orderwatch/internal/domain"
)

// Oracle returns the latest quote for a symbol. Implementations return an
// error wrapping domain.ErrPriceUnavailable when no quote can be produced.
type Oracle interface {
	// Name returns the oracle identifier (e.g. "alpaca", "static").
	Name() string

	// Quote returns the latest price and volume observation for symbol.
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}
