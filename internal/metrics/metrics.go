// Package metrics exposes Prometheus counters for the inspection service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	resolutions  *prometheus.CounterVec
	attachments  *prometheus.CounterVec
	submissions  *prometheus.CounterVec
	archived     *prometheus.CounterVec
	sessions     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcheck_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomcheck_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcheck_resolutions_total",
			Help: "Flow resolutions by outcome.",
		}, []string{"outcome"}),
		attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcheck_attachments_total",
			Help: "Attachment ingestions by result.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcheck_submissions_total",
			Help: "Inspection submissions by variant and outcome.",
		}, []string{"variant", "outcome"}),
		archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcheck_archived_files_total",
			Help: "Evidence files copied to the photo store by result.",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomcheck_browser_sessions",
			Help: "Browser sessions currently held in memory.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.resolutions,
		m.attachments,
		m.submissions,
		m.archived,
		m.sessions,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Attachment(result string) {
	if m == nil {
		return
	}
	m.attachments.WithLabelValues(result).Inc()
}

func (m *Metrics) Submission(variant, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(variant, outcome).Inc()
}

func (m *Metrics) Archived(result string) {
	if m == nil {
		return
	}
	m.archived.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
