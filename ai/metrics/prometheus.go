// Package metrics provides Prometheus metrics export for the query pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports query pipeline metrics in Prometheus format.
// All record methods are nil-safe so callers can run without metrics wired.
type PrometheusExporter struct {
	registry *prometheus.Registry

	turnLatency  *prometheus.HistogramVec
	turnRequests *prometheus.CounterVec

	validatorRejections *prometheus.CounterVec
	backendFallbacks    *prometheus.CounterVec
	backendLatency      *prometheus.HistogramVec
	agentIterations     prometheus.Histogram
	prodQueries         *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "prodtalk",
			Subsystem: "query",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn processing latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"outcome"},
	)

	e.turnRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prodtalk",
			Subsystem: "query",
			Name:      "turns_total",
			Help:      "Total number of processed query turns",
		},
		[]string{"outcome"},
	)

	e.validatorRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prodtalk",
			Subsystem: "sqlguard",
			Name:      "rejections_total",
			Help:      "Total number of rejected candidate SQL statements",
		},
		[]string{"reason"},
	)

	e.backendFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prodtalk",
			Subsystem: "llm",
			Name:      "backend_failures_total",
			Help:      "Total generation backend failures that triggered fallback",
		},
		[]string{"backend", "kind"},
	)

	e.backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "prodtalk",
			Subsystem: "llm",
			Name:      "backend_latency_seconds",
			Help:      "Generation backend call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"backend"},
	)

	e.agentIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "prodtalk",
			Subsystem: "agent",
			Name:      "iterations",
			Help:      "Decision loop iterations per turn",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	e.prodQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prodtalk",
			Subsystem: "proddb",
			Name:      "queries_total",
			Help:      "Total production database queries",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.turnLatency,
		e.turnRequests,
		e.validatorRejections,
		e.backendFallbacks,
		e.backendLatency,
		e.agentIterations,
		e.prodQueries,
	)

	return e
}

// RecordTurn records one processed turn with its outcome and latency.
func (e *PrometheusExporter) RecordTurn(outcome string, latency time.Duration) {
	if e == nil {
		return
	}
	e.turnRequests.WithLabelValues(outcome).Inc()
	e.turnLatency.WithLabelValues(outcome).Observe(latency.Seconds())
}

// RecordValidatorRejection records a rejected candidate SQL by reason code.
func (e *PrometheusExporter) RecordValidatorRejection(reason string) {
	if e == nil {
		return
	}
	e.validatorRejections.WithLabelValues(reason).Inc()
}

// RecordBackendFailure records one backend failure that caused a fallback.
func (e *PrometheusExporter) RecordBackendFailure(backend, kind string) {
	if e == nil {
		return
	}
	e.backendFallbacks.WithLabelValues(backend, kind).Inc()
}

// RecordBackendLatency records a generation backend call latency.
func (e *PrometheusExporter) RecordBackendLatency(backend string, latency time.Duration) {
	if e == nil {
		return
	}
	e.backendLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// RecordAgentIterations records how many decision iterations a turn used.
func (e *PrometheusExporter) RecordAgentIterations(n int) {
	if e == nil {
		return
	}
	e.agentIterations.Observe(float64(n))
}

// RecordProdQuery records a production database query by status.
func (e *PrometheusExporter) RecordProdQuery(status string) {
	if e == nil {
		return
	}
	e.prodQueries.WithLabelValues(status).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}
