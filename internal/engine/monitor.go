package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"orderwatch/internal/domain"
)

// Monitor names, used in logs and metric labels.
const (
	monitorConditional = "conditional"
	monitorTrailing    = "trailing"
	monitorOCO         = "oco"
	monitorBracket     = "bracket"
	monitorIceberg     = "iceberg"
	monitorSchedule    = "schedule"
)

type monitor struct {
	name     string
	interval time.Duration
	sweep    func(ctx context.Context) error
}

func (e *Engine) monitors() []monitor {
	return []monitor{
		{monitorConditional, e.opts.ConditionalInterval, e.sweepConditional},
		{monitorTrailing, e.opts.TrailingInterval, e.sweepTrailing},
		{monitorOCO, e.opts.OCOInterval, e.sweepOCO},
		{monitorBracket, e.opts.BracketInterval, e.sweepBracket},
		{monitorIceberg, e.opts.IcebergInterval, e.sweepIceberg},
		{monitorSchedule, e.opts.ScheduleInterval, e.sweepSchedule},
	}
}

// Run starts every monitor and blocks until ctx is cancelled. In-flight
// executions finish before their monitor returns.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "oracle", e.oracle.Name(), "broker", e.broker.Name(), "workers", e.opts.MaxWorkers)

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range e.monitors() {
		g.Go(func() error {
			e.loop(ctx, m)
			return nil
		})
	}
	err := g.Wait()
	e.log.Info("engine stopped")
	return err
}

// Tick runs one sweep of every monitor in turn.
func (e *Engine) Tick(ctx context.Context) {
	for _, m := range e.monitors() {
		e.runSweep(ctx, m)
	}
}

func (e *Engine) loop(ctx context.Context, m monitor) {
	interval := m.interval
	if interval <= 0 {
		interval = time.Second
	}
	e.log.Debug("monitor started", "monitor", m.name, "interval", interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		e.runSweep(ctx, m)
		timer.Reset(interval)
	}
}

func (e *Engine) runSweep(ctx context.Context, m monitor) {
	if err := m.sweep(ctx); err != nil && ctx.Err() == nil {
		e.log.Error("sweep failed", "monitor", m.name, "error", err)
	}
	e.flushFills(context.WithoutCancel(ctx))
}

// ---------------------------------------------------------------------------
// Per-sweep fan-out
// ---------------------------------------------------------------------------

// sweepQuotes memoises one quote per symbol for the duration of a sweep and
// tracks whether the oracle answered at all.
type sweepQuotes struct {
	e        *Engine
	mu       sync.Mutex
	entries  map[string]*quoteEntry
	attempts atomic.Int64
	failures atomic.Int64
}

type quoteEntry struct {
	once sync.Once
	q    domain.Quote
	err  error
}

func (e *Engine) newSweepQuotes() *sweepQuotes {
	return &sweepQuotes{e: e, entries: make(map[string]*quoteEntry)}
}

func (s *sweepQuotes) get(ctx context.Context, symbol string) (domain.Quote, error) {
	s.mu.Lock()
	ent, ok := s.entries[symbol]
	if !ok {
		ent = &quoteEntry{}
		s.entries[symbol] = ent
	}
	s.mu.Unlock()

	ent.once.Do(func() {
		s.attempts.Add(1)
		ent.q, ent.err = s.e.oracle.Quote(ctx, symbol)
		if ent.err == nil && !ent.q.Price.IsPositive() {
			ent.err = domain.ErrPriceUnavailable
		}
		if ent.err != nil {
			s.failures.Add(1)
			s.e.metrics.unavailable()
		}
	})
	return ent.q, ent.err
}

// observed returns the quotes fetched successfully during the sweep.
func (s *sweepQuotes) observed() []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Quote, 0, len(s.entries))
	for symbol, ent := range s.entries {
		if ent.err == nil {
			q := ent.q
			q.Symbol = symbol
			out = append(out, q)
		}
	}
	return out
}

// fanOut evaluates fn for every order concurrently, bounded by MaxWorkers.
// A failing order is logged and never stops the rest of the sweep.
func (e *Engine) fanOut(
	ctx context.Context,
	name string,
	orders []domain.Order,
	fn func(ctx context.Context, o *domain.Order, quotes *sweepQuotes) error,
) *sweepQuotes {
	start := time.Now()
	quotes := e.newSweepQuotes()

	var g errgroup.Group
	g.SetLimit(e.opts.MaxWorkers)
	for i := range orders {
		o := &orders[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := fn(ctx, o, quotes)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrPriceUnavailable):
				e.log.Debug("no price; order left unchanged", "monitor", name, "order_id", o.ID, "symbol", o.Symbol)
			case errors.Is(err, domain.ErrConflict):
				e.metrics.conflict(name)
				e.log.Debug("order changed concurrently; skipped", "monitor", name, "order_id", o.ID)
			default:
				e.log.Error("evaluating order", "monitor", name, "order_id", o.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := quotes.attempts.Load(); n > 0 {
		e.setHealthy(quotes.failures.Load() < n)
	}
	e.metrics.sweep(name, len(orders), time.Since(start))
	return quotes
}
