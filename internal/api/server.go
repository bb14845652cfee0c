// Package api provides the HTTP and gRPC server for orderwatch, exposing
// order intake, cancellation, queries and live order events.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"orderwatch/internal/domain"
)

// Engine is the order surface the API serves.
type Engine interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) ([]domain.Order, error)
	CancelOrder(ctx context.Context, owner, id string) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, owner string, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateTrailingStop(ctx context.Context, id string, newStop decimal.Decimal) (*domain.Order, error)
	Healthy() bool
}

// EventSource hands out per-owner event subscriptions.
type EventSource interface {
	Subscribe(owner string, bufSize int) (int, <-chan domain.Event)
	Unsubscribe(id int)
}

// QuoteSetter accepts manually entered quotes, as the static paper-trading
// oracle does.
type QuoteSetter interface {
	SetPrice(symbol string, price decimal.Decimal)
	SetQuote(symbol string, price, volume decimal.Decimal)
}

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	engine   Engine
	events   EventSource
	quotes   QuoteSetter
	origins  []string
	gatherer prometheus.Gatherer
	health   *health.Server
	log      *slog.Logger
}

// NewServer creates a Server. gatherer may be nil to disable /metrics.
func NewServer(engine Engine, events EventSource, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	s := &Server{
		engine:   engine,
		events:   events,
		gatherer: gatherer,
		health:   health.NewServer(),
		log:      log.With("component", "api"),
	}
	s.SetHealthy(engine.Healthy())
	return s
}

// WithQuotes enables PUT /api/quotes/{symbol}, which feeds prices to q.
func (s *Server) WithQuotes(q QuoteSetter) *Server {
	s.quotes = q
	return s
}

// WithOriginPatterns allows event-stream handshakes from browser origins
// matching patterns (host globs such as "*.example.com"). Same-origin and
// non-browser clients are always accepted.
func (s *Server) WithOriginPatterns(patterns ...string) *Server {
	s.origins = patterns
	return s
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// ListenAndServe starts the HTTP listener and, when grpcAddr is set, the
// gRPC listener. It blocks until ctx is cancelled or a listener fails, then
// shuts both down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string) error {
	g, ctx := errgroup.WithContext(ctx)

	var gs *grpc.Server
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		gs = grpc.NewServer()
		s.RegisterGRPC(gs)
		g.Go(func() error {
			s.log.Info("grpc server listening", "addr", grpcAddr)
			return gs.Serve(lis)
		})
	}

	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		s.log.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if gs != nil {
			s.health.Shutdown()
			gs.GracefulStop()
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
