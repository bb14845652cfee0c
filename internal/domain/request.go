package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the kind of advanced order a caller asks for. Bracket and OCO
// requests expand into several orders.
type OrderType string

const (
	TypeStopLoss     OrderType = "stop_loss"
	TypeTakeProfit   OrderType = "take_profit"
	TypeTrailingStop OrderType = "trailing_stop"
	TypeBracket      OrderType = "bracket"
	TypeOCO          OrderType = "oco"
	TypeIceberg      OrderType = "iceberg"
	TypeTWAP         OrderType = "twap"
	TypeVWAP         OrderType = "vwap"
)

// OrderRequest is the input to order intake.
//
// Price fields by type:
//   - stop_loss: StopPrice
//   - take_profit: LimitPrice
//   - trailing_stop: TrailAmount, TrailType, optional initial StopPrice
//   - bracket: LimitPrice (entry), StopPrice, TakeProfitPrice
//   - oco: StopPrice, LimitPrice
//   - iceberg: VisibleQuantity
//   - twap, vwap: Duration
type OrderRequest struct {
	Owner    string          `json:"owner"`
	Type     OrderType       `json:"type"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`

	StopPrice       decimal.NullDecimal `json:"stop_price"`
	LimitPrice      decimal.NullDecimal `json:"limit_price"`
	TakeProfitPrice decimal.NullDecimal `json:"take_profit_price"`

	TrailAmount decimal.NullDecimal `json:"trail_amount"`
	TrailType   TrailType           `json:"trail_type,omitempty"`

	VisibleQuantity decimal.NullDecimal `json:"visible_quantity"`
	Duration        time.Duration       `json:"duration,omitempty"`
}
