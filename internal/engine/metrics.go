package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"orderwatch/internal/domain"
)

// Metrics holds the Prometheus collectors for engine activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	OrdersCreated    *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	Executions       *prometheus.CounterVec
	ClaimConflicts   *prometheus.CounterVec
	SweepDuration    *prometheus.HistogramVec
	SweepOrders      *prometheus.GaugeVec
	PriceUnavailable prometheus.Counter
	OracleHealthy    prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "orders_created_total",
			Help:      "Orders accepted at intake",
		}, []string{"family"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "terminal_transitions_total",
			Help:      "Orders reaching a terminal status",
		}, []string{"family", "status"}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Broker executions by outcome",
		}, []string{"family", "result"}),
		ClaimConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "claim_conflicts_total",
			Help:      "Claims lost to a concurrent writer",
		}, []string{"monitor"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "sweep_duration_seconds",
			Help:      "Monitor sweep duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"monitor"}),
		SweepOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "sweep_orders",
			Help:      "Orders evaluated by the last sweep",
		}, []string{"monitor"}),
		PriceUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "price_unavailable_total",
			Help:      "Quote lookups that returned no price",
		}),
		OracleHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orderwatch",
			Subsystem: "engine",
			Name:      "oracle_healthy",
			Help:      "1 when the price oracle answered during the last sweep",
		}),
	}
	m.OracleHealthy.Set(1)
	reg.MustRegister(
		m.OrdersCreated, m.Transitions, m.Executions, m.ClaimConflicts,
		m.SweepDuration, m.SweepOrders, m.PriceUnavailable, m.OracleHealthy,
	)
	return m
}

func (m *Metrics) created(f domain.Family) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(string(f)).Inc()
}

func (m *Metrics) transition(f domain.Family, s domain.Status) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(f), string(s)).Inc()
}

func (m *Metrics) execution(f domain.Family, result string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(string(f), result).Inc()
}

func (m *Metrics) conflict(monitor string) {
	if m == nil {
		return
	}
	m.ClaimConflicts.WithLabelValues(monitor).Inc()
}

func (m *Metrics) sweep(monitor string, n int, d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(monitor).Observe(d.Seconds())
	m.SweepOrders.WithLabelValues(monitor).Set(float64(n))
}

func (m *Metrics) unavailable() {
	if m == nil {
		return
	}
	m.PriceUnavailable.Inc()
}

func (m *Metrics) oracleHealth(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.OracleHealthy.Set(1)
		return
	}
	m.OracleHealthy.Set(0)
}
