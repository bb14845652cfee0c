// Package engine watches advanced orders against live prices and converts
// them into fills or cancellations. It owns order intake, the six monitor
// sweeps, and the coordination rules for bracket and OCO families.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"orderwatch/internal/broker"
	"orderwatch/internal/config"
	"orderwatch/internal/domain"
	"orderwatch/internal/marketdata"
	"orderwatch/internal/notify"
	"orderwatch/internal/store"
)

// Options controls monitor cadence and fan-out.
type Options struct {
	ConditionalInterval time.Duration
	TrailingInterval    time.Duration
	OCOInterval         time.Duration
	BracketInterval     time.Duration
	IcebergInterval     time.Duration
	ScheduleInterval    time.Duration

	// MaxWorkers caps concurrent per-order evaluations within one sweep.
	MaxWorkers int

	// VolumeWindow is the number of past intervals averaged for VWAP.
	VolumeWindow int

	// ExecutionTimeout bounds a single broker call.
	ExecutionTimeout time.Duration
}

// OptionsFromConfig converts the engine section of the service config.
func OptionsFromConfig(c config.EngineConfig) Options {
	return Options{
		ConditionalInterval: c.ConditionalInterval,
		TrailingInterval:    c.TrailingInterval,
		OCOInterval:         c.OCOInterval,
		BracketInterval:     c.BracketInterval,
		IcebergInterval:     c.IcebergInterval,
		ScheduleInterval:    c.ScheduleInterval,
		MaxWorkers:          c.MaxWorkers,
		VolumeWindow:        c.VolumeWindow,
		ExecutionTimeout:    c.ExecutionTimeout,
	}
}

// DefaultOptions returns the cadence used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ConditionalInterval: time.Second,
		TrailingInterval:    time.Second,
		OCOInterval:         time.Second,
		BracketInterval:     time.Second,
		IcebergInterval:     2 * time.Second,
		ScheduleInterval:    5 * time.Second,
		MaxWorkers:          16,
		VolumeWindow:        30,
		ExecutionTimeout:    10 * time.Second,
	}
}

// Engine orchestrates the advanced-order lifecycle by reading the order
// store, pricing through the oracle, executing through a broker and
// reporting through the notification bus.
type Engine struct {
	orders  store.OrderStore
	oracle  marketdata.Oracle
	broker  broker.Broker
	bus     notify.Bus
	journal store.FillJournal
	metrics *Metrics
	opts    Options
	log     *slog.Logger

	volumes *VolumeProfile

	pendingMu    sync.Mutex
	pendingFills []domain.Fill

	healthy    atomic.Bool
	healthHook func(healthy bool)
	now        func() time.Time
	newID      func() string
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	orders store.OrderStore,
	oracle marketdata.Oracle,
	b broker.Broker,
	bus notify.Bus,
	opts Options,
	log *slog.Logger,
) *Engine {
	def := DefaultOptions()
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = def.MaxWorkers
	}
	if opts.VolumeWindow < 1 {
		opts.VolumeWindow = def.VolumeWindow
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = def.ExecutionTimeout
	}
	if bus == nil {
		bus = notify.Multi{}
	}
	e := &Engine{
		orders:  orders,
		oracle:  oracle,
		broker:  b,
		bus:     bus,
		opts:    opts,
		log:     log.With("component", "engine"),
		volumes: NewVolumeProfile(opts.VolumeWindow),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	e.healthy.Store(true)
	return e
}

// WithJournal records every fill in j.
func (e *Engine) WithJournal(j store.FillJournal) *Engine {
	e.journal = j
	return e
}

// WithMetrics reports engine activity to m.
func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// OnHealthChange registers fn to be called whenever oracle health flips.
func (e *Engine) OnHealthChange(fn func(healthy bool)) {
	e.healthHook = fn
}

// Healthy reports whether the last sweep could price at least one order.
func (e *Engine) Healthy() bool {
	return e.healthy.Load()
}

// ---------------------------------------------------------------------------
// Query surface
// ---------------------------------------------------------------------------

// GetOrder returns a single order by id.
func (e *Engine) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return e.orders.GetOrder(ctx, id)
}

// ListOrders returns the owner's orders that match filter.
func (e *Engine) ListOrders(ctx context.Context, owner string, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.Owner = owner
	if filter.Symbol != "" {
		filter.Symbol = strings.ToUpper(filter.Symbol)
	}
	return e.orders.ListOrders(ctx, filter)
}

// ---------------------------------------------------------------------------
// Notification and bookkeeping helpers
// ---------------------------------------------------------------------------

// emit pushes an event for o. Delivery problems are the bus's concern.
func (e *Engine) emit(ctx context.Context, t domain.EventType, o *domain.Order, msg string) {
	e.bus.Send(ctx, o.Owner, domain.NewEvent(t, o, msg))
	if t.Terminal() {
		e.metrics.transition(o.Family, o.Status)
	}
}

// record queues a fill for the journal. Queued fills are written together
// at the end of the sweep that produced them.
func (e *Engine) record(f domain.Fill) {
	if e.journal == nil {
		return
	}
	e.pendingMu.Lock()
	e.pendingFills = append(e.pendingFills, f)
	e.pendingMu.Unlock()
}

// flushFills writes queued fills to the journal in one batch. On failure the
// batch is kept and retried after the next sweep.
func (e *Engine) flushFills(ctx context.Context) {
	e.pendingMu.Lock()
	fills := e.pendingFills
	e.pendingFills = nil
	e.pendingMu.Unlock()
	if len(fills) == 0 {
		return
	}

	if err := e.journal.WriteFills(ctx, fills); err != nil {
		e.log.Error("journaling fills", "fills", len(fills), "error", err)
		e.pendingMu.Lock()
		e.pendingFills = append(fills, e.pendingFills...)
		e.pendingMu.Unlock()
	}
}

func (e *Engine) setHealthy(ok bool) {
	if e.healthy.Swap(ok) == ok {
		return
	}
	if ok {
		e.log.Info("price oracle recovered", "oracle", e.oracle.Name())
	} else {
		e.log.Warn("price oracle unavailable; holding order state", "oracle", e.oracle.Name())
	}
	e.metrics.oracleHealth(ok)
	if e.healthHook != nil {
		e.healthHook(ok)
	}
}

func orderLog(log *slog.Logger, o *domain.Order) *slog.Logger {
	return log.With("order_id", o.ID, "family", o.Family, "symbol", o.Symbol)
}

func clientOrderID(o *domain.Order, slice int) string {
	return fmt.Sprintf("%s-%d-%d", o.ID, slice, o.Version)
}
