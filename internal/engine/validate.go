package engine

import (
	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// validateRequest checks the fields every order type needs. Price
// relationships against the market are checked once a quote is known.
func validateRequest(req domain.OrderRequest) error {
	if req.Owner == "" {
		return domain.Invalidf("owner is required")
	}
	if req.Symbol == "" {
		return domain.Invalidf("symbol is required")
	}
	if !req.Side.Valid() {
		return domain.Invalidf("side must be buy or sell, got %q", req.Side)
	}
	if !req.Quantity.IsPositive() {
		return domain.Invalidf("quantity must be positive")
	}

	switch req.Type {
	case domain.TypeStopLoss:
		return requirePositive("stop_price", req.StopPrice)
	case domain.TypeTakeProfit:
		return requirePositive("limit_price", req.LimitPrice)
	case domain.TypeTrailingStop:
		return validateTrail(req)
	case domain.TypeBracket:
		return validateBracket(req)
	case domain.TypeOCO:
		if err := requirePositive("stop_price", req.StopPrice); err != nil {
			return err
		}
		return requirePositive("limit_price", req.LimitPrice)
	case domain.TypeIceberg:
		if err := requirePositive("visible_quantity", req.VisibleQuantity); err != nil {
			return err
		}
		if !req.VisibleQuantity.Decimal.LessThan(req.Quantity) {
			return domain.Invalidf("visible_quantity %s must be less than quantity %s",
				req.VisibleQuantity.Decimal, req.Quantity)
		}
		return nil
	case domain.TypeTWAP, domain.TypeVWAP:
		if req.Duration <= 0 {
			return domain.Invalidf("duration must be positive")
		}
		return nil
	case "":
		return domain.Invalidf("type is required")
	default:
		return domain.Invalidf("unknown order type %q", req.Type)
	}
}

func validateTrail(req domain.OrderRequest) error {
	if err := requirePositive("trail_amount", req.TrailAmount); err != nil {
		return err
	}
	switch req.TrailType {
	case domain.TrailAbsolute:
	case domain.TrailPercentage:
		if !req.TrailAmount.Decimal.LessThan(decimal.NewFromInt(100)) {
			return domain.Invalidf("percentage trail_amount must be below 100")
		}
	default:
		return domain.Invalidf("trail_type must be percentage or absolute, got %q", req.TrailType)
	}
	if req.StopPrice.Valid && !req.StopPrice.Decimal.IsPositive() {
		return domain.Invalidf("stop_price must be positive")
	}
	return nil
}

// validateBracket enforces stop < entry < take-profit for a long entry and
// the mirror for a short one.
func validateBracket(req domain.OrderRequest) error {
	if err := requirePositive("limit_price", req.LimitPrice); err != nil {
		return err
	}
	if err := requirePositive("stop_price", req.StopPrice); err != nil {
		return err
	}
	if err := requirePositive("take_profit_price", req.TakeProfitPrice); err != nil {
		return err
	}
	entry, stop, tp := req.LimitPrice.Decimal, req.StopPrice.Decimal, req.TakeProfitPrice.Decimal
	if req.Side == domain.SideBuy && !(stop.LessThan(entry) && entry.LessThan(tp)) {
		return domain.Invalidf("buy bracket needs stop %s < entry %s < take profit %s", stop, entry, tp)
	}
	if req.Side == domain.SideSell && !(tp.LessThan(entry) && entry.LessThan(stop)) {
		return domain.Invalidf("sell bracket needs take profit %s < entry %s < stop %s", tp, entry, stop)
	}
	return nil
}

// checkStopSide reports whether a protective stop is on the correct side of
// the market: below it for a sell, above it for a buy.
func checkStopSide(side domain.Side, stop, price decimal.Decimal) error {
	if side == domain.SideSell && !stop.LessThan(price) {
		return domain.Invalidf("sell stop %s must be below current price %s", stop, price)
	}
	if side == domain.SideBuy && !stop.GreaterThan(price) {
		return domain.Invalidf("buy stop %s must be above current price %s", stop, price)
	}
	return nil
}

// checkLimitSide reports whether a take-profit limit has not already been
// reached: above the market for a sell, below it for a buy.
func checkLimitSide(side domain.Side, limit, price decimal.Decimal) error {
	if side == domain.SideSell && !limit.GreaterThan(price) {
		return domain.Invalidf("sell limit %s must be above current price %s", limit, price)
	}
	if side == domain.SideBuy && !limit.LessThan(price) {
		return domain.Invalidf("buy limit %s must be below current price %s", limit, price)
	}
	return nil
}

func requirePositive(field string, v decimal.NullDecimal) error {
	if !v.Valid {
		return domain.Invalidf("%s is required", field)
	}
	if !v.Decimal.IsPositive() {
		return domain.Invalidf("%s must be positive", field)
	}
	return nil
}
