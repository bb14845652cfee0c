package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"orderwatch/internal/broker"
	"orderwatch/internal/domain"
	"orderwatch/internal/engine"
	"orderwatch/internal/marketdata"
	"orderwatch/internal/notify"
	"orderwatch/internal/store"
)

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	eng    *engine.Engine
	oracle *marketdata.StaticOracle
	hub    *notify.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	oracle := marketdata.NewStaticOracle()
	oracle.SetPrice("AAPL", decimal.NewFromInt(100))
	hub := notify.NewHub()
	reg := prometheus.NewRegistry()

	eng := engine.NewEngine(store.NewMemoryStore(), oracle, broker.NewSimulatorBroker(), hub, engine.DefaultOptions(), log).
		WithMetrics(engine.NewMetrics(reg))
	srv := NewServer(eng, hub, reg, log).
		WithQuotes(oracle).
		WithOriginPatterns("app.example.com")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, http: ts, eng: eng, oracle: oracle, hub: hub}
}

func (env *testEnv) do(t *testing.T, method, path, user, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, env.http.URL+path, r)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(OwnerHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeOrders(t *testing.T, data []byte) []domain.Order {
	t.Helper()
	var out OrdersResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out.Orders
}

const stopLossBody = `{"type":"stop_loss","symbol":"aapl","side":"sell","quantity":"10","stop_price":"95"}`

func TestCreateAndQueryOrders(t *testing.T) {
	env := newTestEnv(t)

	resp, data := env.do(t, "POST", "/api/orders", "alice", stopLossBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	created := decodeOrders(t, data)
	require.Len(t, created, 1)
	id := created[0].ID
	assert.Equal(t, "AAPL", created[0].Symbol)
	assert.Equal(t, domain.StatusPending, created[0].Status)

	resp, data = env.do(t, "GET", "/api/orders/"+id, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.Order
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.StopPrice.Decimal.Equal(decimal.NewFromInt(95)))

	resp, _ = env.do(t, "GET", "/api/orders/"+id, "bob", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "other users' orders are invisible")

	resp, data = env.do(t, "GET", "/api/orders?status=pending&family=stop_loss", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeOrders(t, data), 1)

	resp, data = env.do(t, "GET", "/api/orders", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeOrders(t, data))
	assert.Contains(t, string(data), `"orders":[]`)

	resp, _ = env.do(t, "GET", "/api/orders?status=sleeping", "alice", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		user string
		body string
		want int
	}{
		{"no owner", "", stopLossBody, http.StatusUnauthorized},
		{"bad json", "alice", `{"type":`, http.StatusBadRequest},
		{"stop above market", "alice", `{"type":"stop_loss","symbol":"AAPL","side":"sell","quantity":"1","stop_price":"120"}`, http.StatusBadRequest},
		{"bad duration", "alice", `{"type":"twap","symbol":"AAPL","side":"buy","quantity":"10","duration":"soon"}`, http.StatusBadRequest},
		{"no quote", "alice", `{"type":"stop_loss","symbol":"MSFT","side":"sell","quantity":"1","stop_price":"95"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := env.do(t, "POST", "/api/orders", tt.user, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(data))
			assert.Contains(t, string(data), `"error"`)
		})
	}
}

func TestCancelAndUpdateStop(t *testing.T) {
	env := newTestEnv(t)

	_, data := env.do(t, "POST", "/api/orders", "alice",
		`{"type":"oco","symbol":"AAPL","side":"sell","quantity":"5","stop_price":"95","limit_price":"110"}`)
	legs := decodeOrders(t, data)
	require.Len(t, legs, 2)

	resp, _ := env.do(t, "DELETE", "/api/orders/"+legs[0].ID, "bob", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = env.do(t, "DELETE", "/api/orders/"+legs[0].ID, "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeOrders(t, data), 2, "cancelling one leg cancels its sibling")

	resp, _ = env.do(t, "DELETE", "/api/orders/"+legs[0].ID, "alice", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, data = env.do(t, "POST", "/api/orders", "alice",
		`{"type":"trailing_stop","symbol":"AAPL","side":"sell","quantity":"5","trail_amount":"5","trail_type":"absolute"}`)
	trail := decodeOrders(t, data)[0]

	resp, data = env.do(t, "PUT", "/api/orders/"+trail.ID+"/stop", "alice", `{"stop_price":"97.5"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var got domain.Order
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.StopPrice.Decimal.Equal(decimal.RequireFromString("97.5")))

	resp, _ = env.do(t, "PUT", "/api/orders/"+trail.ID+"/stop", "bob", `{"stop_price":"90"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, data := env.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"ok"`)

	env.do(t, "POST", "/api/orders", "alice", stopLossBody)
	resp, data = env.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "orderwatch_engine_orders_created_total")

	env.oracle.SetDown(true)
	env.eng.Tick(context.Background())
	resp, data = env.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(data), `"degraded"`)
}

func (env *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/events"
}

func ownerDial(user string) *websocket.DialOptions {
	return &websocket.DialOptions{HTTPHeader: http.Header{OwnerHeader: {user}}}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, env.wsURL(), ownerDial("alice"))
	require.NoError(t, err)
	defer c.CloseNow()

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	env.do(t, "POST", "/api/orders", "bob", stopLossBody)
	env.do(t, "POST", "/api/orders", "alice", stopLossBody)

	var e domain.Event
	require.NoError(t, wsjson.Read(ctx, c, &e))
	assert.Equal(t, domain.EventCreated, e.Type)
	assert.Equal(t, "alice", e.Owner)
}

func TestEventStreamHandshake(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		url    string
		header http.Header
		want   int
	}{
		{"user parameter is not an identity", env.wsURL() + "?user=alice", nil, http.StatusUnauthorized},
		{"foreign origin", env.wsURL(), http.Header{OwnerHeader: {"alice"}, "Origin": {"https://evil.example.net"}}, http.StatusForbidden},
		{"allowed origin", env.wsURL(), http.Header{OwnerHeader: {"alice"}, "Origin": {"https://app.example.com"}}, http.StatusSwitchingProtocols},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c, resp, err := websocket.Dial(ctx, tt.url, &websocket.DialOptions{HTTPHeader: tt.header})
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want != http.StatusSwitchingProtocols {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			c.CloseNow()
		})
	}
	assert.Eventually(t, func() bool { return env.hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSetQuote(t *testing.T) {
	env := newTestEnv(t)

	resp, data := env.do(t, "POST", "/api/orders", "alice",
		`{"type":"stop_loss","symbol":"MSFT","side":"sell","quantity":"1","stop_price":"400"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "no quote yet: %s", data)

	resp, data = env.do(t, "PUT", "/api/quotes/msft", "alice", `{"price":"415.5","volume":"1200"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var got QuoteJSON
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "MSFT", got.Symbol)

	q, err := env.oracle.Quote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("415.5")))
	assert.True(t, q.Volume.Equal(decimal.NewFromInt(1200)))

	resp, data = env.do(t, "POST", "/api/orders", "alice",
		`{"type":"stop_loss","symbol":"MSFT","side":"sell","quantity":"1","stop_price":"400"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, _ = env.do(t, "PUT", "/api/quotes/MSFT", "alice", `{"price":"0"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, "PUT", "/api/quotes/MSFT", "", `{"price":"1"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSetQuoteDisabledWithoutSetter(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	oracle := marketdata.NewStaticOracle()
	hub := notify.NewHub()
	eng := engine.NewEngine(store.NewMemoryStore(), oracle, broker.NewSimulatorBroker(), hub, engine.DefaultOptions(), log)
	ts := httptest.NewServer(NewServer(eng, hub, nil, log).Handler())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest("PUT", ts.URL+"/api/quotes/AAPL", strings.NewReader(`{"price":"1"}`))
	require.NoError(t, err)
	req.Header.Set(OwnerHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGRPCHealth(t *testing.T) {
	env := newTestEnv(t)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	env.srv.RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	env.srv.SetHealthy(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
