package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// OrderRequestJSON is the JSON body of POST /api/orders. Prices are decimal
// strings or numbers; duration is a Go duration string such as "30m".
type OrderRequestJSON struct {
	Type            string              `json:"type"`
	Symbol          string              `json:"symbol"`
	Side            string              `json:"side"`
	Quantity        decimal.Decimal     `json:"quantity"`
	StopPrice       decimal.NullDecimal `json:"stop_price"`
	LimitPrice      decimal.NullDecimal `json:"limit_price"`
	TakeProfitPrice decimal.NullDecimal `json:"take_profit_price"`
	TrailAmount     decimal.NullDecimal `json:"trail_amount"`
	TrailType       string              `json:"trail_type,omitempty"`
	VisibleQuantity decimal.NullDecimal `json:"visible_quantity"`
	Duration        string              `json:"duration,omitempty"`
}

// ToDomain converts the wire request into an engine request for owner.
func (r OrderRequestJSON) ToDomain(owner string) (domain.OrderRequest, error) {
	req := domain.OrderRequest{
		Owner:           owner,
		Type:            domain.OrderType(strings.ToLower(r.Type)),
		Symbol:          r.Symbol,
		Side:            domain.Side(strings.ToLower(r.Side)),
		Quantity:        r.Quantity,
		StopPrice:       r.StopPrice,
		LimitPrice:      r.LimitPrice,
		TakeProfitPrice: r.TakeProfitPrice,
		TrailAmount:     r.TrailAmount,
		TrailType:       domain.TrailType(strings.ToLower(r.TrailType)),
		VisibleQuantity: r.VisibleQuantity,
	}
	if r.Duration != "" {
		d, err := time.ParseDuration(r.Duration)
		if err != nil {
			return req, domain.Invalidf("duration %q: %v", r.Duration, err)
		}
		req.Duration = d
	}
	return req, nil
}

// OrdersResponse wraps a list of orders.
type OrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// StopUpdateJSON is the JSON body of PUT /api/orders/{id}/stop.
type StopUpdateJSON struct {
	StopPrice decimal.Decimal `json:"stop_price"`
}

// QuoteJSON is the body and response of PUT /api/quotes/{symbol}. Volume is
// optional; without it the symbol's previous volume is kept.
type QuoteJSON struct {
	Symbol string              `json:"symbol,omitempty"`
	Price  decimal.Decimal     `json:"price"`
	Volume decimal.NullDecimal `json:"volume"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
