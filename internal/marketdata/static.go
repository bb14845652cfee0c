package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderwatch/internal/config"
	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ Oracle = (*StaticOracle)(nil)

// StaticOracle serves quotes that are set explicitly. It backs paper trading
// without market-data credentials and drives the engine in tests.
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
	down   bool
}

// NewStaticOracle creates a StaticOracle with no quotes.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{quotes: make(map[string]domain.Quote)}
}

// NewStaticOracleFromConfig creates a StaticOracle seeded with the configured
// paper quotes.
func NewStaticOracleFromConfig(cfg config.PaperConfig) (*StaticOracle, error) {
	o := NewStaticOracle()
	for symbol, pq := range cfg.Quotes {
		price, volume, err := pq.Decimals()
		if err != nil {
			return nil, fmt.Errorf("paper quote %s: %w", symbol, err)
		}
		o.SetQuote(symbol, price, volume)
	}
	return o, nil
}

// Len returns the number of symbols with a quote.
func (o *StaticOracle) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.quotes)
}

// Name returns "static".
func (o *StaticOracle) Name() string { return "static" }

// SetPrice sets the price for symbol, keeping any previously set volume.
func (o *StaticOracle) SetPrice(symbol string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	q := o.quotes[symbol]
	q.Symbol = symbol
	q.Price = price
	q.Timestamp = time.Now().UTC()
	o.quotes[symbol] = q
}

// SetQuote replaces the quote for symbol.
func (o *StaticOracle) SetQuote(symbol string, price, volume decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	o.quotes[symbol] = domain.Quote{
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: time.Now().UTC(),
	}
}

// Remove drops the quote for symbol.
func (o *StaticOracle) Remove(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.quotes, strings.ToUpper(symbol))
}

// SetDown makes every lookup fail while down is true.
func (o *StaticOracle) SetDown(down bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.down = down
}

// Quote returns the stored quote for symbol.
func (o *StaticOracle) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.down {
		return domain.Quote{}, fmt.Errorf("%w: oracle offline", domain.ErrPriceUnavailable)
	}
	q, ok := o.quotes[strings.ToUpper(symbol)]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: no quote for %s", domain.ErrPriceUnavailable, symbol)
	}
	return q, nil
}
