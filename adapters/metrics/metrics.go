// Package metrics provides Prometheus metrics collection for meterd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for meterd.
type Collector struct {
	// Admission metrics
	AdmittedTotal *prometheus.CounterVec
	RejectedTotal *prometheus.CounterVec
	Unthrottled   prometheus.Counter
	UnknownPlans  *prometheus.CounterVec

	// Ingest pipeline metrics
	QueueDepth       prometheus.Gauge
	PersistsInFlight prometheus.Gauge
	PersistedTotal   prometheus.Counter
	DroppedTotal     prometheus.Counter
	CooldownsTotal   prometheus.Counter

	// Aggregation metrics
	AggregationRuns     *prometheus.CounterVec
	CustomersAggregated prometheus.Counter
	CustomersFailed     prometheus.Counter

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a new metrics collector with all metrics registered on the
// default registry.
func New() *Collector {
	return &Collector{
		AdmittedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "requests_admitted_total",
				Help:      "Requests admitted by the sliding-window limiter",
			},
			[]string{"plan"},
		),
		RejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "requests_rejected_total",
				Help:      "Requests rejected by the sliding-window limiter",
			},
			[]string{"plan"},
		),
		Unthrottled: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "requests_unthrottled_total",
				Help:      "Requests passed through without a resolved principal",
			},
		),
		UnknownPlans: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "unknown_plan_total",
				Help:      "Admission checks that failed open on an unknown plan",
			},
			[]string{"plan"},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meterd",
				Name:      "ingest_queue_depth",
				Help:      "Usage events waiting in the ingest queue",
			},
		),
		PersistsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meterd",
				Name:      "ingest_persists_in_flight",
				Help:      "Usage event persists currently in flight",
			},
		),
		PersistedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "ingest_persisted_total",
				Help:      "Usage events persisted successfully",
			},
		),
		DroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "ingest_dropped_total",
				Help:      "Usage events dropped after a persistence failure",
			},
		),
		CooldownsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "ingest_cooldowns_total",
				Help:      "Cooldowns entered by the ingest pipeline rate valve",
			},
		),

		AggregationRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "aggregation_runs_total",
				Help:      "Monthly aggregation runs by outcome",
			},
			[]string{"outcome"},
		),
		CustomersAggregated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "aggregation_customers_total",
				Help:      "Customers aggregated successfully",
			},
		),
		CustomersFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "aggregation_customers_failed_total",
				Help:      "Customers skipped after an aggregation failure",
			},
		),

		ConfigReloads: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "config_reloads_total",
				Help:      "Successful configuration reloads",
			},
		),
		ConfigReloadErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "meterd",
				Name:      "config_reload_errors_total",
				Help:      "Failed configuration reloads",
			},
		),
	}
}
