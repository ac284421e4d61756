package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/flowpaste/internal/privacy"
)

// Rule latency buckets in milliseconds, clustered around the 50ms budget
var ruleBuckets = []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100}

// Metrics holds the collectors for one registry
type Metrics struct {
	registry *prometheus.Registry

	PIIDetected  *prometheus.CounterVec
	MaskCalls    prometheus.Counter
	RuleRuns     *prometheus.CounterVec
	RuleLatency  *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec
	BatchRecords *prometheus.CounterVec

	// Sessions that expire are never restored, so begun minus restored
	// overcounts open sessions
	ShieldSessions *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		PIIDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpaste_pii_detected_total",
				Help: "PII items detected, by type",
			},
			[]string{"type"},
		),
		MaskCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowpaste_mask_calls_total",
			Help: "Number of mask operations",
		}),
		RuleRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpaste_rule_runs_total",
				Help: "Rule executions, by rule and outcome",
			},
			[]string{"rule", "outcome"},
		),
		RuleLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowpaste_rule_latency_ms",
				Help:    "Rule execution latency in milliseconds",
				Buckets: ruleBuckets,
			},
			[]string{"outcome"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpaste_http_requests_total",
				Help: "HTTP requests, by route and status",
			},
			[]string{"route", "status"},
		),
		ShieldSessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpaste_shield_sessions_total",
				Help: "Shield session events: begun, restored, not_found",
			},
			[]string{"event"},
		),
		BatchRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowpaste_batch_records_total",
				Help: "Batch records processed, by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveScan counts the items of a scan
func (m *Metrics) ObserveScan(result privacy.ScanResult) {
	for t, n := range result.Counts() {
		m.PIIDetected.WithLabelValues(string(t)).Add(float64(n))
	}
}

// ObserveMask counts a mask call and its items
func (m *Metrics) ObserveMask(result privacy.MaskResult) {
	m.MaskCalls.Inc()
	m.ObserveScan(result.ScanResult)
}

// ObserveRule implements rules.Observer
func (m *Metrics) ObserveRule(ruleID, outcome string, elapsed time.Duration) {
	m.RuleRuns.WithLabelValues(ruleID, outcome).Inc()
	m.RuleLatency.WithLabelValues(outcome).Observe(float64(elapsed) / float64(time.Millisecond))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
