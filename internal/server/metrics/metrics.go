// Package metrics defines the Prometheus collectors the server exports.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	sharedWaits     prometheus.Counter
	loginTotal      *prometheus.CounterVec
	captureFailures prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenkeeper_provider_refresh_total",
			Help: "Provider token refresh attempts by result",
		}, []string{"result"}),

		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenkeeper_provider_request_duration_seconds",
			Help:    "Latency of calls to the provider token endpoint",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),

		sharedWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenkeeper_refresh_shared_total",
			Help: "GetFresh calls that reused another caller's in-flight refresh",
		}),

		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenkeeper_login_completions_total",
			Help: "Login completions by result",
		}, []string{"result"}),

		captureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenkeeper_login_capture_failures_total",
			Help: "Logins whose provider credential capture failed or was skipped",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenkeeper_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokenkeeper_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.refreshTotal,
		m.providerLatency,
		m.sharedWaits,
		m.loginTotal,
		m.captureFailures,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRefresh(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
	m.providerLatency.WithLabelValues(result).Observe(took.Seconds())
}

func (m *Metrics) IncSharedWait() {
	if m == nil {
		return
	}
	m.sharedWaits.Inc()
}

func (m *Metrics) IncLogin(result string) {
	if m == nil {
		return
	}
	m.loginTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCaptureFailure() {
	if m == nil {
		return
	}
	m.captureFailures.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
