package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// Compile-time interface check.
var _ Oracle = (*AlpacaOracle)(nil)

// AlpacaOracle implements Oracle using the Alpaca market-data API. The price
// is the latest trade; the volume is the latest minute bar's volume.
type AlpacaOracle struct {
	client *alpacamd.Client
	log    *slog.Logger
}

// NewAlpacaOracle creates an AlpacaOracle configured with the given
// credentials. An empty dataURL selects the Alpaca default endpoint.
func NewAlpacaOracle(apiKey, apiSecret, dataURL string, log *slog.Logger) *AlpacaOracle {
	opts := alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaOracle{
		client: alpacamd.NewClient(opts),
		log:    log.With("oracle", "alpaca"),
	}
}

// Name returns "alpaca".
func (o *AlpacaOracle) Name() string { return "alpaca" }

// Quote fetches the latest trade and minute bar for symbol.
func (o *AlpacaOracle) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	symbol = strings.ToUpper(symbol)

	trade, err := o.client.GetLatestTrade(symbol, alpacamd.GetLatestTradeRequest{})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: latest trade %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: no trade for %s", domain.ErrPriceUnavailable, symbol)
	}

	q := domain.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(trade.Price),
		Volume:    decimal.Zero,
		Timestamp: trade.Timestamp.UTC(),
	}

	bar, err := o.client.GetLatestBar(symbol, alpacamd.GetLatestBarRequest{})
	if err != nil {
		o.log.Debug("latest bar unavailable", "symbol", symbol, "error", err)
		return q, nil
	}
	if bar != nil {
		q.Volume = decimal.NewFromInt(int64(bar.Volume))
	}
	return q, nil
}
