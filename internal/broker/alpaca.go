package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"orderwatch/internal/domain"
	"orderwatch/internal/util"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

var errNotFilled = errors.New("order not filled yet")

// AlpacaBroker implements the Broker interface using the Alpaca brokerage
// API. Each execution is a day market order polled until it settles.
type AlpacaBroker struct {
	client       *alpacaapi.Client
	pollAttempts int
	pollDelay    time.Duration
	log          *slog.Logger
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoint.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string, log *slog.Logger) *AlpacaBroker {
	return &AlpacaBroker{
		client: alpacaapi.NewClient(alpacaapi.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		pollAttempts: 8,
		pollDelay:    250 * time.Millisecond,
		log:          log.With("broker", "alpaca"),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// Execute submits a market order and waits for it to fill. An order still
// open after polling is cancelled; whatever filled by then is returned.
func (b *AlpacaBroker) Execute(ctx context.Context, req ExecutionRequest) (domain.Fill, error) {
	qty := req.Quantity
	side := alpacaapi.Buy
	if req.Side == domain.SideSell {
		side = alpacaapi.Sell
	}

	placed, err := b.client.PlaceOrder(alpacaapi.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          side,
		Type:          alpacaapi.Market,
		TimeInForce:   alpacaapi.Day,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		return domain.Fill{}, domain.Rejectedf("placing order %s: %v", req.ClientOrderID, err)
	}
	b.log.Info("order placed", "client_order_id", req.ClientOrderID, "alpaca_id", placed.ID,
		"symbol", req.Symbol, "side", req.Side, "qty", qty.String())

	var last *alpacaapi.Order
	err = util.Retry(ctx, b.pollAttempts, b.pollDelay, func() error {
		o, err := b.client.GetOrder(placed.ID)
		if err != nil {
			return err
		}
		last = o
		switch o.Status {
		case "filled":
			return nil
		case "rejected", "canceled", "expired", "suspended":
			return util.Permanent(domain.Rejectedf("order %s %s", placed.ID, o.Status))
		}
		return errNotFilled
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrExecutionRejected):
		return domain.Fill{}, err
	default:
		if cerr := b.client.CancelOrder(placed.ID); cerr != nil {
			b.log.Warn("cancelling unfilled order", "alpaca_id", placed.ID, "error", cerr)
		}
		if last == nil || last.FilledQty.IsZero() {
			return domain.Fill{}, domain.Rejectedf("order %s not filled: %v", placed.ID, err)
		}
		b.log.Warn("order partially filled", "alpaca_id", placed.ID, "filled_qty", last.FilledQty.String())
	}

	fill := domain.Fill{
		OrderID:   req.OrderID,
		Slice:     req.Slice,
		BrokerID:  last.ID,
		Owner:     req.Owner,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  last.FilledQty,
		Price:     req.ReferencePrice,
		Timestamp: time.Now().UTC(),
	}
	if last.FilledAvgPrice != nil {
		fill.Price = *last.FilledAvgPrice
	}
	return fill, nil
}
