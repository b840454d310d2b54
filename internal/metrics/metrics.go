// Package metrics holds the Prometheus instrumentation for the ingestion
// path, the window store, the rule engine, and the notification dispatcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for alphawatch.
type Registry struct {
	registry *prometheus.Registry

	// Ingestion metrics
	IngestEvents *prometheus.CounterVec // result: accepted, dropped_untracked, dropped_invalid

	// Rule engine metrics
	RuleHits     *prometheus.CounterVec // rule kind
	EvalDuration prometheus.Histogram

	// Window store metrics
	StoreOps     *prometheus.CounterVec // operation, result
	StoreLatency *prometheus.HistogramVec

	// Dispatcher metrics
	NotifySent       prometheus.Counter
	NotifySuppressed prometheus.Counter
	NotifyDropped    *prometheus.CounterVec // reason: queue_full, delivery_failed, rate_limited

	// Roster metrics
	RosterSize        prometheus.Gauge
	RosterLastRefresh prometheus.Gauge
}

// NewRegistry creates a registry with all alphawatch metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		IngestEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphawatch_ingest_events_total",
				Help: "Webhook events processed by the normalizer, by outcome",
			},
			[]string{"result"},
		),

		RuleHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphawatch_rule_hits_total",
				Help: "Confluence events produced, by rule kind",
			},
			[]string{"rule"},
		),

		EvalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alphawatch_eval_duration_seconds",
				Help:    "Rule evaluation latency per trigger",
				Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
			},
		),

		StoreOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphawatch_store_ops_total",
				Help: "Window store operations, by operation and result",
			},
			[]string{"operation", "result"},
		),

		StoreLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alphawatch_store_latency_seconds",
				Help:    "Window store operation latency",
				Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"},
		),

		NotifySent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alphawatch_notifications_sent_total",
				Help: "Notifications delivered to the chat sink",
			},
		),

		NotifySuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alphawatch_notifications_suppressed_total",
				Help: "Notifications suppressed by the cooldown key",
			},
		),

		NotifyDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphawatch_notifications_dropped_total",
				Help: "Notifications dropped, by reason",
			},
			[]string{"reason"},
		),

		RosterSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alphawatch_roster_size",
				Help: "Number of wallets in the current tracked set",
			},
		),

		RosterLastRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alphawatch_roster_last_refresh_timestamp_seconds",
				Help: "Unix time of the last successful roster refresh",
			},
		),
	}

	r.registry.MustRegister(
		r.IngestEvents,
		r.RuleHits,
		r.EvalDuration,
		r.StoreOps,
		r.StoreLatency,
		r.NotifySent,
		r.NotifySuppressed,
		r.NotifyDropped,
		r.RosterSize,
		r.RosterLastRefresh,
	)

	return r
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
