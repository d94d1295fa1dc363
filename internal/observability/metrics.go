package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gateway"

// ReadinessChecker reports whether a dependency is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Admission pipeline
	AdmissionDecisions *prometheus.CounterVec
	QueryDepth         prometheus.Histogram
	QueryComplexity    prometheus.Histogram

	// Persisted queries
	APQLookups       *prometheus.CounterVec
	APQRegistrations prometheus.Counter

	// Rate limiter
	RateLimitTrackedKeys prometheus.Gauge
	RateLimitEvictions   *prometheus.CounterVec

	// Audit
	AuditEventsPublished prometheus.Counter
	AuditEventsDropped   prometheus.Counter
}

// NewMetrics creates and registers all gateway metrics with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewTestMetrics creates metrics backed by a throw-away registry.
// Safe to call from multiple tests without duplicate-registration panics.
func NewTestMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.NewRegistry()))
}

func newMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path"}),

		AdmissionDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission pipeline outcomes by decision and rejection reason.",
		}, []string{"decision", "reason"}),

		QueryDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_depth",
			Help:      "Measured selection-set nesting depth per operation.",
			Buckets:   []float64{1, 2, 3, 5, 7, 10, 15, 20},
		}),

		QueryComplexity: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_complexity",
			Help:      "Estimated query complexity per operation.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000, 10000},
		}),

		APQLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apq_lookups_total",
			Help:      "Persisted-query lookups by result (hit or miss).",
		}, []string{"result"}),

		APQRegistrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apq_registrations_total",
			Help:      "Total persisted-query registrations.",
		}),

		RateLimitTrackedKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_tracked_keys",
			Help:      "Number of caller keys currently tracked by the rate limiter.",
		}),

		RateLimitEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_evictions_total",
			Help:      "Rate limiter entries removed, by cause (capacity or sweep).",
		}, []string{"cause"}),

		AuditEventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_published_total",
			Help:      "Total admission audit events published.",
		}),

		AuditEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events dropped because the publish buffer was full.",
		}),
	}
}
