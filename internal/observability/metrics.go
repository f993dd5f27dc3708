// Package observability wires Prometheus metrics for the HTTP surface and
// the fulfillment workflow.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sagaSteps       *prometheus.CounterVec
	ledgerReposts   prometheus.Counter
	quotesExpired   prometheus.Counter
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sagaSteps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_saga_steps_total",
		Help: "Workflow step executions by saga, step and outcome.",
	}, []string{"saga", "step", "outcome"})
	ledgerReposts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_ledger_reposts_total",
		Help: "Revenue postings retried through the background queue.",
	})
	quotesExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_quotes_expired_total",
		Help: "Quotes moved to EXPIRED by the sweep task.",
	})
	registry.MustRegister(requests, duration, sagaSteps, ledgerReposts, quotesExpired)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		sagaSteps:       sagaSteps,
		ledgerReposts:   ledgerReposts,
		quotesExpired:   quotesExpired,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SagaStep counts one workflow step execution.
func (m *Metrics) SagaStep(saga, step, outcome string) {
	if m == nil {
		return
	}
	m.sagaSteps.WithLabelValues(saga, step, outcome).Inc()
}

// LedgerRepost counts one retried revenue posting.
func (m *Metrics) LedgerRepost() {
	if m == nil {
		return
	}
	m.ledgerReposts.Inc()
}

// QuotesExpired counts quotes expired by the sweep.
func (m *Metrics) QuotesExpired(n int64) {
	if m == nil {
		return
	}
	m.quotesExpired.Add(float64(n))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
