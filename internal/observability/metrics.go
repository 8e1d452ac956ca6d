// Package observability provides Prometheus metrics for pcrtrack.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for pcrtrack.
// Metrics live on a private registry, not the global default.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Domain store metrics.
	MutationsTotal    *prometheus.CounterVec
	PermissionDenials *prometheus.CounterVec
	HydrationFailures *prometheus.CounterVec

	// Notifier metrics.
	NotificationsTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcrtrack",
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Total domain store mutations.",
		}, []string{"entity", "op", "status"}),

		PermissionDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcrtrack",
			Subsystem: "store",
			Name:      "permission_denials_total",
			Help:      "Mutations rejected by the permission gate.",
		}, []string{"entity", "op"}),

		HydrationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcrtrack",
			Subsystem: "store",
			Name:      "hydration_failures_total",
			Help:      "Collection refreshes that failed and kept prior state.",
		}, []string{"collection"}),

		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcrtrack",
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Notification records fanned out, by type.",
		}, []string{"type"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcrtrack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pcrtrack",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcrtrack",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		m.MutationsTotal,
		m.PermissionDenials,
		m.HydrationFailures,
		m.NotificationsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitedTotal,
	)

	return m
}
