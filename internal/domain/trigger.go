package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// StopCrossed reports whether price has reached a protective stop. A sell
// stop fires at or below the stop; a buy stop fires at or above it.
func StopCrossed(side Side, price, stop decimal.Decimal) bool {
	if side == SideSell {
		return price.LessThanOrEqual(stop)
	}
	return price.GreaterThanOrEqual(stop)
}

// LimitCrossed reports whether price has reached a limit. A sell limit fires
// at or above the limit; a buy limit fires at or below it.
func LimitCrossed(side Side, price, limit decimal.Decimal) bool {
	if side == SideSell {
		return price.GreaterThanOrEqual(limit)
	}
	return price.LessThanOrEqual(limit)
}

// Triggered evaluates the trigger condition of a single-leg or composite
// order against price. Chunked families are never price triggered.
func (o *Order) Triggered(price decimal.Decimal) bool {
	switch o.Family {
	case FamilyStopLoss, FamilyTrailingStop, FamilyOCOStop, FamilyBracketStop:
		return o.StopPrice.Valid && StopCrossed(o.Side, price, o.StopPrice.Decimal)
	case FamilyTakeProfit, FamilyOCOLimit, FamilyBracketTakeProfit, FamilyBracketEntry:
		return o.LimitPrice.Valid && LimitCrossed(o.Side, price, o.LimitPrice.Decimal)
	}
	return false
}

// TrailingStop computes the stop a trailing order would sit at for price.
func TrailingStop(side Side, price, amount decimal.Decimal, tt TrailType) decimal.Decimal {
	dist := amount
	if tt == TrailPercentage {
		dist = price.Mul(amount).Div(hundred)
	}
	if side == SideSell {
		return price.Sub(dist).Round(PriceScale)
	}
	return price.Add(dist).Round(PriceScale)
}

// Ratchet returns the trailing stop for price and whether it moved. The stop
// only moves in the holder's favor: up for sells, down for buys.
func (o *Order) Ratchet(price decimal.Decimal) (decimal.Decimal, bool) {
	if !o.TrailAmount.Valid {
		return o.StopPrice.Decimal, false
	}
	candidate := TrailingStop(o.Side, price, o.TrailAmount.Decimal, o.TrailType)
	if !o.StopPrice.Valid {
		return candidate, true
	}
	cur := o.StopPrice.Decimal
	if o.Side == SideSell && candidate.GreaterThan(cur) {
		return candidate, true
	}
	if o.Side == SideBuy && candidate.LessThan(cur) {
		return candidate, true
	}
	return cur, false
}
