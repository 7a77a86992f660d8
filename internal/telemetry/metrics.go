// Package telemetry exposes Prometheus metrics for the pipeline.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline's instruments. One instance is shared by
// the producer, the consumers, and the coordinator.
type Metrics struct {
	ItemsTotal         *prometheus.CounterVec
	LicenseesExtracted *prometheus.CounterVec
	ItemDuration       *prometheus.HistogramVec
	RateLimitDelay     *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	HealthScore        prometheus.Gauge
	ActiveWorkers      prometheus.Gauge
	SeededTotal        *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New builds a Metrics on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadscraper",
			Name:      "items_total",
			Help:      "Work items processed, by source and outcome.",
		}, []string{"source", "outcome"}),
		LicenseesExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadscraper",
			Name:      "licensees_extracted_total",
			Help:      "New licensee records inserted, by source.",
		}, []string{"source"}),
		ItemDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadscraper",
			Name:      "item_duration_seconds",
			Help:      "End-to-end work item processing time.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"source"}),
		RateLimitDelay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadscraper",
			Name:      "rate_limit_delay_seconds",
			Help:      "Time spent waiting on the per-source budget.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"source"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadscraper",
			Name:      "queue_depth",
			Help:      "Estimated outstanding work items.",
		}),
		HealthScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadscraper",
			Name:      "health_score",
			Help:      "Coordinator pipeline health score, 0 to 1.",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadscraper",
			Name:      "active_consumers",
			Help:      "Consumer workers currently running.",
		}),
		SeededTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadscraper",
			Name:      "seeded_items_total",
			Help:      "Seed run outcomes, by result.",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadscraper",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route, method, and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadscraper",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		registry: reg,
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments chi routes.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chiRoutePattern(r)
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func chiRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
