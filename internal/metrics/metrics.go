// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "profit_hopper"

// Metrics groups the application collectors. Each instance owns its registry
// so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsCommitted    *prometheus.CounterVec
	SessionsBankrupt     prometheus.Counter
	SessionsPlanExceeded prometheus.Counter
	Corrections          prometheus.Counter
	PlansIssued          *prometheus.CounterVec
	InsufficientBankroll prometheus.Counter
	RankRequests         prometheus.Counter
	SessionDelta         prometheus.Histogram
	SummaryCache         *prometheus.CounterVec
	ActiveTrips          prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SessionsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_committed_total",
			Help:      "Sessions recorded, by risk tolerance.",
		}, []string{"tolerance"}),
		SessionsBankrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_bankrupt_total",
			Help:      "Sessions whose loss exhausted the bankroll.",
		}),
		SessionsPlanExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_plan_exceeded_total",
			Help:      "Sessions whose outcome moved more than the planned budget allows.",
		}),
		Corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Compensating entries appended to session histories.",
		}),
		PlansIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_issued_total",
			Help:      "Session plans produced, by volatility of the planned game.",
		}, []string{"volatility"}),
		InsufficientBankroll: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_insufficient_bankroll_total",
			Help:      "Plan requests refused because the bankroll cannot cover the minimum bet.",
		}),
		RankRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_requests_total",
			Help:      "Recommendation requests served.",
		}),
		SessionDelta: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_outcome_delta",
			Help:      "Net result of recorded sessions in currency units.",
			Buckets:   []float64{-500, -200, -100, -50, -20, 0, 20, 50, 100, 200, 500},
		}),
		SummaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_requests_total",
			Help:      "Summary cache lookups, by result.",
		}, []string{"result"}),
		ActiveTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_trips",
			Help:      "Trips started and not yet stopped.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsCommitted,
		m.SessionsBankrupt,
		m.SessionsPlanExceeded,
		m.Corrections,
		m.PlansIssued,
		m.InsufficientBankroll,
		m.RankRequests,
		m.SessionDelta,
		m.SummaryCache,
		m.ActiveTrips,
	)
	return m
}

// PoolStats is the subset of pgxpool statistics exported as gauges.
type PoolStats interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
}

// RegisterPool exports connection pool gauges read from stats on every scrape.
func (m *Metrics) RegisterPool(stats func() PoolStats) {
	gauge := func(name, help string, read func(PoolStats) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats())) })
	}

	m.Registry.MustRegister(
		gauge("total_conns", "Open connections in the pool.", PoolStats.TotalConns),
		gauge("idle_conns", "Idle connections in the pool.", PoolStats.IdleConns),
		gauge("acquired_conns", "Connections currently checked out.", PoolStats.AcquiredConns),
	)
}
