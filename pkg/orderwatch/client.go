package orderwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/shopspring/decimal"

	"orderwatch/internal/api"
	"orderwatch/internal/domain"
)

// Wire types shared with the server.
type (
	Order        = domain.Order
	Event        = domain.Event
	OrderRequest = api.OrderRequestJSON
)

// Client provides a Go SDK for the orderwatch-server API. Every call is made
// on behalf of a single user.
type Client struct {
	baseURL    string
	user       string
	httpClient *http.Client
}

// NewClient creates a new orderwatch API client acting as user.
func NewClient(baseURL, user string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		user:       user,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("orderwatch: %d %s", e.StatusCode, e.Message)
}

// ListOptions narrows ListOrders. Zero values are ignored.
type ListOptions struct {
	Symbol   string
	GroupID  string
	Statuses []string
	Families []string
	Limit    int
}

// PlaceOrder submits an advanced order and returns every order it created:
// one for simple families, two for OCO, three for bracket.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) ([]Order, error) {
	var out api.OrdersResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// ListOrders returns the user's orders.
func (c *Client) ListOrders(ctx context.Context, opts ListOptions) ([]Order, error) {
	q := url.Values{}
	if opts.Symbol != "" {
		q.Set("symbol", opts.Symbol)
	}
	if opts.GroupID != "" {
		q.Set("group", opts.GroupID)
	}
	if len(opts.Statuses) > 0 {
		q.Set("status", strings.Join(opts.Statuses, ","))
	}
	if len(opts.Families) > 0 {
		q.Set("family", strings.Join(opts.Families, ","))
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}
	path := "/api/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out api.OrdersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// GetOrder retrieves one order.
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder cancels an order and returns every order the cancel touched.
func (c *Client) CancelOrder(ctx context.Context, id string) ([]Order, error) {
	var out api.OrdersResponse
	if err := c.do(ctx, http.MethodDelete, "/api/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// SetStop moves a pending trailing stop's stop price.
func (c *Client) SetStop(ctx context.Context, id string, stop decimal.Decimal) (*Order, error) {
	var o Order
	body := api.StopUpdateJSON{StopPrice: stop}
	if err := c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id)+"/stop", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetQuote feeds a price to a paper-trading server. A zero volume keeps the
// symbol's previous volume.
func (c *Client) SetQuote(ctx context.Context, symbol string, price, volume decimal.Decimal) error {
	body := api.QuoteJSON{Price: price}
	if !volume.IsZero() {
		body.Volume = decimal.NewNullDecimal(volume)
	}
	return c.do(ctx, http.MethodPut, "/api/quotes/"+url.PathEscape(symbol), body, nil)
}

// Health reports the server's health status, "ok" or "degraded".
func (c *Client) Health(ctx context.Context) (string, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		return "degraded", nil
	}
	if err != nil {
		return "", err
	}
	return out.Status, nil
}

// Events streams the user's order events until ctx is cancelled or the
// connection drops. The returned channel is closed when the stream ends.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/events"
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{api.OwnerHeader: []string{c.user}},
	})
	if err != nil {
		return nil, fmt.Errorf("dialing event stream: %w", err)
	}
	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		defer conn.CloseNow()
		for {
			var e Event
			if err := wsjson.Read(ctx, conn, &e); err != nil {
				return
			}
			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(api.OwnerHeader, c.user)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
