package services

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP surface and upstream
// collaborators. A nil *Metrics records nothing.
type Metrics struct {
	gatherer         prometheus.Gatherer
	requests         *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamFailures *prometheus.CounterVec
	turns            *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mensetsu_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mensetsu_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mensetsu_upstream_duration_seconds",
			Help:    "Latency of AI and speech calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"service"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mensetsu_upstream_failures_total",
			Help: "Failed AI and speech calls",
		}, []string{"service"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mensetsu_interview_turns_total",
			Help: "Interview turns processed by mode",
		}, []string{"mode"}),
	}
	reg.MustRegister(m.requests, m.requestLatency, m.upstreamLatency, m.upstreamFailures, m.turns)
	return m
}

// ObserveUpstream records one call to an external collaborator.
func (m *Metrics) ObserveUpstream(service string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(service).Observe(elapsed.Seconds())
	if err != nil {
		m.upstreamFailures.WithLabelValues(service).Inc()
	}
}

// RecordTurn counts a processed answer or chat turn.
func (m *Metrics) RecordTurn(mode string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode).Inc()
}

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
