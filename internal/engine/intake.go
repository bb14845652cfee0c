package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
)

// CreateOrder validates req against the current market and persists the
// resulting order set as pending. Bracket and OCO requests produce several
// orders sharing a group id. Nothing executes synchronously.
func (e *Engine) CreateOrder(ctx context.Context, req domain.OrderRequest) ([]domain.Order, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	q, err := e.oracle.Quote(ctx, req.Symbol)
	if err == nil && !q.Price.IsPositive() {
		err = domain.ErrPriceUnavailable
	}
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			return nil, fmt.Errorf("%w: no quote for %s: %w", domain.ErrValidation, req.Symbol, err)
		}
		return nil, fmt.Errorf("quoting %s: %w", req.Symbol, err)
	}

	set, err := e.buildOrders(req, q.Price)
	if err != nil {
		return nil, err
	}
	if err := e.orders.CreateOrders(ctx, set); err != nil {
		return nil, fmt.Errorf("persisting %s order: %w", req.Type, err)
	}

	out := make([]domain.Order, 0, len(set))
	for _, o := range set {
		e.metrics.created(o.Family)
		e.emit(ctx, domain.EventCreated, o, "")
		out = append(out, *o)
	}
	e.log.Info("order created",
		"group_id", set[0].GroupID,
		"type", req.Type,
		"owner", req.Owner,
		"symbol", req.Symbol,
		"side", req.Side,
		"quantity", req.Quantity,
		"price", q.Price,
		"orders", len(set),
	)
	return out, nil
}

// buildOrders expands req into the orders to persist and checks the price
// relationships that depend on the current market price.
func (e *Engine) buildOrders(req domain.OrderRequest, price decimal.Decimal) ([]*domain.Order, error) {
	switch req.Type {
	case domain.TypeStopLoss:
		if err := checkStopSide(req.Side, req.StopPrice.Decimal, price); err != nil {
			return nil, err
		}
		o := e.newOrder(req, domain.FamilyStopLoss, req.Side)
		o.StopPrice = req.StopPrice
		return []*domain.Order{o}, nil

	case domain.TypeTakeProfit:
		if err := checkLimitSide(req.Side, req.LimitPrice.Decimal, price); err != nil {
			return nil, err
		}
		o := e.newOrder(req, domain.FamilyTakeProfit, req.Side)
		o.LimitPrice = req.LimitPrice
		return []*domain.Order{o}, nil

	case domain.TypeTrailingStop:
		o := e.newOrder(req, domain.FamilyTrailingStop, req.Side)
		o.TrailAmount = req.TrailAmount
		o.TrailType = req.TrailType
		if req.StopPrice.Valid {
			if err := checkStopSide(req.Side, req.StopPrice.Decimal, price); err != nil {
				return nil, err
			}
			o.StopPrice = req.StopPrice
		} else {
			stop := domain.TrailingStop(req.Side, price, req.TrailAmount.Decimal, req.TrailType)
			if !stop.IsPositive() {
				return nil, domain.Invalidf("trail %s leaves no positive stop below %s", req.TrailAmount.Decimal, price)
			}
			o.StopPrice = decimal.NewNullDecimal(stop)
		}
		return []*domain.Order{o}, nil

	case domain.TypeBracket:
		entry := e.newOrder(req, domain.FamilyBracketEntry, req.Side)
		entry.LimitPrice = req.LimitPrice

		exit := req.Side.Opposite()
		stop := e.newOrder(req, domain.FamilyBracketStop, exit)
		stop.StopPrice = req.StopPrice
		tp := e.newOrder(req, domain.FamilyBracketTakeProfit, exit)
		tp.LimitPrice = req.TakeProfitPrice
		for _, child := range []*domain.Order{stop, tp} {
			child.ParentID = entry.ID
			child.GroupID = entry.ID
		}
		return []*domain.Order{entry, stop, tp}, nil

	case domain.TypeOCO:
		if err := checkStopSide(req.Side, req.StopPrice.Decimal, price); err != nil {
			return nil, err
		}
		if err := checkLimitSide(req.Side, req.LimitPrice.Decimal, price); err != nil {
			return nil, err
		}
		stop := e.newOrder(req, domain.FamilyOCOStop, req.Side)
		stop.StopPrice = req.StopPrice
		limit := e.newOrder(req, domain.FamilyOCOLimit, req.Side)
		limit.LimitPrice = req.LimitPrice
		limit.ParentID = stop.ID
		limit.GroupID = stop.ID
		return []*domain.Order{stop, limit}, nil

	case domain.TypeIceberg:
		o := e.newOrder(req, domain.FamilyIceberg, req.Side)
		o.VisibleQuantity = req.VisibleQuantity
		return []*domain.Order{o}, nil

	case domain.TypeTWAP, domain.TypeVWAP:
		o := e.newOrder(req, domain.Family(req.Type), req.Side)
		o.Duration = req.Duration
		return []*domain.Order{o}, nil
	}
	return nil, domain.Invalidf("unknown order type %q", req.Type)
}

func (e *Engine) newOrder(req domain.OrderRequest, family domain.Family, side domain.Side) *domain.Order {
	now := e.now()
	id := e.newID()
	return &domain.Order{
		ID:               id,
		Owner:            req.Owner,
		Symbol:           req.Symbol,
		Family:           family,
		Side:             side,
		Quantity:         req.Quantity,
		QuantityExecuted: decimal.Zero,
		GroupID:          id,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
