package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderwatch/internal/domain"
)

// OwnerHeader carries the caller's user id. Authentication happens upstream.
const OwnerHeader = "X-User-ID"

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", s.handleCancelOrder)
	mux.HandleFunc("PUT /api/orders/{id}/stop", s.handleUpdateStop)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.quotes != nil {
		mux.HandleFunc("PUT /api/quotes/{symbol}", s.handleSetQuote)
	}
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+OwnerHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeEngineError maps engine sentinel errors to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotCancellable), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPriceUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// owner returns the caller's id, writing 401 when it is missing.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if id == "" {
		writeError(w, http.StatusUnauthorized, OwnerHeader+" header required")
		return "", false
	}
	return id, true
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	var body OrderRequestJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	req, err := body.ToDomain(user)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	orders, err := s.engine.CreateOrder(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, OrdersResponse{Orders: orders})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	orders, err := s.engine.ListOrders(r.Context(), user, filter)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, OrdersResponse{Orders: orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	o, err := s.ownedOrder(r, user)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, o)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	orders, err := s.engine.CancelOrder(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, OrdersResponse{Orders: orders})
}

func (s *Server) handleUpdateStop(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	var body StopUpdateJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if _, err := s.ownedOrder(r, user); err != nil {
		s.writeEngineError(w, err)
		return
	}
	o, err := s.engine.UpdateTrailingStop(r.Context(), r.PathValue("id"), body.StopPrice)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, o)
}

func (s *Server) handleSetQuote(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	var body QuoteJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if !body.Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}
	if body.Volume.Valid && body.Volume.Decimal.IsNegative() {
		writeError(w, http.StatusBadRequest, "volume must not be negative")
		return
	}
	if body.Volume.Valid {
		s.quotes.SetQuote(symbol, body.Price, body.Volume.Decimal)
	} else {
		s.quotes.SetPrice(symbol, body.Price)
	}
	s.log.Info("quote set", "symbol", symbol, "price", body.Price, "user", user)
	body.Symbol = symbol
	writeJSON(w, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.Healthy() {
		writeJSONStatus(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, HealthResponse{Status: "ok"})
}

// ownedOrder loads the order named in the path, hiding other users' orders.
func (s *Server) ownedOrder(r *http.Request, user string) (*domain.Order, error) {
	id := r.PathValue("id")
	o, err := s.engine.GetOrder(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if o.Owner != user {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// parseFilter reads symbol, status, family and limit query parameters.
// status and family accept comma-separated lists.
func parseFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	f := domain.OrderFilter{Symbol: q.Get("symbol"), GroupID: q.Get("group")}

	for _, v := range splitList(q.Get("status")) {
		st := domain.Status(v)
		if !st.Valid() {
			return f, domain.Invalidf("unknown status %q", v)
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, v := range splitList(q.Get("family")) {
		fam := domain.Family(v)
		if !fam.Valid() {
			return f, domain.Invalidf("unknown family %q", v)
		}
		f.Families = append(f.Families, fam)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.Invalidf("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
