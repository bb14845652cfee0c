package orderwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderwatch/internal/api"
	"orderwatch/internal/broker"
	"orderwatch/internal/domain"
	"orderwatch/internal/engine"
	"orderwatch/internal/marketdata"
	"orderwatch/internal/notify"
	"orderwatch/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *notify.Hub) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	oracle := marketdata.NewStaticOracle()
	oracle.SetPrice("AAPL", decimal.NewFromInt(100))
	hub := notify.NewHub()
	eng := engine.NewEngine(store.NewMemoryStore(), oracle, broker.NewSimulatorBroker(), hub, engine.DefaultOptions(), log)
	ts := httptest.NewServer(api.NewServer(eng, hub, nil, log).WithQuotes(oracle).Handler())
	t.Cleanup(ts.Close)
	return ts, hub
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/", "alice")
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, "alice", c.user)
	require.NotNil(t, c.httpClient)
}

func TestClientRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()
	c := NewClient(ts.URL, "alice")

	orders, err := c.PlaceOrder(ctx, OrderRequest{
		Type:        "trailing_stop",
		Symbol:      "AAPL",
		Side:        "sell",
		Quantity:    decimal.NewFromInt(3),
		TrailAmount: decimal.NewNullDecimal(decimal.NewFromInt(2)),
		TrailType:   "percentage",
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	id := orders[0].ID
	assert.True(t, orders[0].StopPrice.Decimal.Equal(decimal.NewFromInt(98)))

	list, err := c.ListOrders(ctx, ListOptions{Symbol: "AAPL", Families: []string{"trailing_stop"}})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	o, err := c.SetStop(ctx, id, decimal.NewFromInt(99))
	require.NoError(t, err)
	assert.True(t, o.StopPrice.Decimal.Equal(decimal.NewFromInt(99)))

	cancelled, err := c.CancelOrder(ctx, id)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, domain.StatusCancelled, cancelled[0].Status)

	o, err = c.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)

	status, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", status)
}

func TestClientSetQuote(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()
	c := NewClient(ts.URL, "alice")

	msft := OrderRequest{
		Type:      "stop_loss",
		Symbol:    "MSFT",
		Side:      "sell",
		Quantity:  decimal.NewFromInt(1),
		StopPrice: decimal.NewNullDecimal(decimal.NewFromInt(400)),
	}
	_, err := c.PlaceOrder(ctx, msft)
	require.Error(t, err, "no MSFT quote yet")

	require.NoError(t, c.SetQuote(ctx, "msft", decimal.NewFromInt(415), decimal.Zero))
	orders, err := c.PlaceOrder(ctx, msft)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	err = c.SetQuote(ctx, "MSFT", decimal.Zero, decimal.Zero)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClientErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()

	_, err := NewClient(ts.URL, "bob").GetOrder(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = NewClient(ts.URL, "bob").PlaceOrder(ctx, OrderRequest{Type: "stop_loss", Symbol: "AAPL", Side: "sell"})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)
}

func TestClientEvents(t *testing.T) {
	ts, hub := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := NewClient(ts.URL, "alice")

	events, err := c.Events(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	_, err = c.PlaceOrder(ctx, OrderRequest{
		Type:      "stop_loss",
		Symbol:    "AAPL",
		Side:      "sell",
		Quantity:  decimal.NewFromInt(1),
		StopPrice: decimal.NewNullDecimal(decimal.NewFromInt(90)),
	})
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, domain.EventCreated, e.Type)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
