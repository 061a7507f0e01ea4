// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's counters and gauges. Construct one per process
// and share it between the engine and the web server.
type Metrics struct {
	AllocationsTotal      prometheus.Counter
	RebalanceRunsTotal    prometheus.Counter
	RebalanceSkipsTotal   prometheus.Counter
	RebalanceMovesTotal   prometheus.Counter
	EscapeValveTotal      prometheus.Counter
	OracleFailuresTotal   prometheus.Counter
	VaultWithdrawalsTotal prometheus.Counter
	EmergencyUnwindsTotal prometheus.Counter
	TotalAllocated        prometheus.Gauge
	ActiveVenues          prometheus.Gauge
}

// New registers the engine metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AllocationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_allocations_total",
			Help: "Completed allocate operations.",
		}),
		RebalanceRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_rebalance_runs_total",
			Help: "Rebalance calls that executed at least one move.",
		}),
		RebalanceSkipsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_rebalance_skips_total",
			Help: "Rebalance calls that no-opped (cooldown, no laggards, empty registry).",
		}),
		RebalanceMovesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_rebalance_moves_total",
			Help: "Individual laggard corrections executed.",
		}),
		EscapeValveTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_escape_valve_total",
			Help: "Distributions that forced remainder past the concentration cap.",
		}),
		OracleFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_oracle_failures_total",
			Help: "Per-venue oracle reads skipped due to failure.",
		}),
		VaultWithdrawalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_vault_withdrawals_total",
			Help: "Completed withdraw-for-vault operations.",
		}),
		EmergencyUnwindsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_emergency_unwinds_total",
			Help: "Emergency full unwinds executed.",
		}),
		TotalAllocated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_total_allocated",
			Help: "Capital currently placed across all venues, in asset base units.",
		}),
		ActiveVenues: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_active_venues",
			Help: "Number of registered active venues.",
		}),
	}
}
