// Package domain defines the core types shared across orderwatch packages:
// advanced orders, quotes, fills, notification events and the error
// taxonomy used by the engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the closing side for s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Family identifies the role an order plays. Composite requests (bracket,
// OCO) expand into several orders with distinct families.
type Family string

const (
	FamilyStopLoss          Family = "stop_loss"
	FamilyTakeProfit        Family = "take_profit"
	FamilyTrailingStop      Family = "trailing_stop"
	FamilyBracketEntry      Family = "bracket_entry"
	FamilyBracketStop       Family = "bracket_stop"
	FamilyBracketTakeProfit Family = "bracket_take_profit"
	FamilyOCOStop           Family = "oco_stop"
	FamilyOCOLimit          Family = "oco_limit"
	FamilyIceberg           Family = "iceberg"
	FamilyTWAP              Family = "twap"
	FamilyVWAP              Family = "vwap"
)

// Families lists every order family.
var Families = []Family{
	FamilyStopLoss, FamilyTakeProfit, FamilyTrailingStop,
	FamilyBracketEntry, FamilyBracketStop, FamilyBracketTakeProfit,
	FamilyOCOStop, FamilyOCOLimit,
	FamilyIceberg, FamilyTWAP, FamilyVWAP,
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	for _, k := range Families {
		if f == k {
			return true
		}
	}
	return false
}

// Chunked reports whether orders of this family execute in slices.
func (f Family) Chunked() bool {
	return f == FamilyIceberg || f == FamilyTWAP || f == FamilyVWAP
}

// Composite reports whether orders of this family belong to a sibling set.
func (f Family) Composite() bool {
	switch f {
	case FamilyBracketEntry, FamilyBracketStop, FamilyBracketTakeProfit,
		FamilyOCOStop, FamilyOCOLimit:
		return true
	}
	return false
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending         Status = "pending"
	StatusArmed           Status = "armed"
	StatusTriggered       Status = "triggered"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusArmed, StatusTriggered, StatusPartiallyFilled,
		StatusFilled, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// TrailType selects how a trailing stop's distance is interpreted.
type TrailType string

const (
	TrailPercentage TrailType = "percentage"
	TrailAbsolute   TrailType = "absolute"
)

// Order is a single advanced order or one leg of a composite set.
type Order struct {
	ID       string          `json:"id"`
	Owner    string          `json:"owner"`
	Symbol   string          `json:"symbol"`
	Family   Family          `json:"family"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`

	StopPrice  decimal.NullDecimal `json:"stop_price"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`

	TrailAmount decimal.NullDecimal `json:"trail_amount"`
	TrailType   TrailType           `json:"trail_type,omitempty"`

	VisibleQuantity  decimal.NullDecimal `json:"visible_quantity"`
	Duration         time.Duration       `json:"duration,omitempty"`
	SlicesExecuted   int                 `json:"slices_executed"`
	QuantityExecuted decimal.Decimal     `json:"quantity_executed"`
	AvgFillPrice     decimal.NullDecimal `json:"avg_fill_price"`

	ParentID string `json:"parent_id,omitempty"`
	GroupID  string `json:"group_id"`

	Status  Status `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Version int64  `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Remaining returns the quantity not yet executed.
func (o *Order) Remaining() decimal.Decimal {
	r := o.Quantity.Sub(o.QuantityExecuted)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// ApplyFill adds an executed slice to the running totals and updates the
// volume-weighted average fill price.
func (o *Order) ApplyFill(qty, price decimal.Decimal) {
	prevQty := o.QuantityExecuted
	total := prevQty.Add(qty)
	if total.IsZero() {
		return
	}
	notional := qty.Mul(price)
	if o.AvgFillPrice.Valid {
		notional = notional.Add(prevQty.Mul(o.AvgFillPrice.Decimal))
	}
	o.QuantityExecuted = total
	o.AvgFillPrice = decimal.NewNullDecimal(notional.DivRound(total, PriceScale))
	o.SlicesExecuted++
}

// PriceScale is the number of decimal places kept for derived prices.
const PriceScale = 8

// Quote is a point-in-time price observation from the price oracle.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Fill is the result of one executed order or slice.
type Fill struct {
	OrderID   string          `json:"order_id"`
	Slice     int             `json:"slice"`
	BrokerID  string          `json:"broker_id,omitempty"`
	Owner     string          `json:"owner"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderFilter narrows ListOrders results. Zero values match everything.
type OrderFilter struct {
	Owner    string
	Symbol   string
	Families []Family
	Statuses []Status
	GroupID  string
	Limit    int
}

// Match reports whether o satisfies the filter.
func (f OrderFilter) Match(o *Order) bool {
	if f.Owner != "" && o.Owner != f.Owner {
		return false
	}
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.GroupID != "" && o.GroupID != f.GroupID {
		return false
	}
	if len(f.Families) > 0 && !containsFamily(f.Families, o.Family) {
		return false
	}
	if len(f.Statuses) > 0 && !ContainsStatus(f.Statuses, o.Status) {
		return false
	}
	return true
}

// ContainsStatus reports whether s is in list.
func ContainsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsFamily(list []Family, f Family) bool {
	for _, v := range list {
		if v == f {
			return true
		}
	}
	return false
}
