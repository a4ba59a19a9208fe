package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	whisperRequestsTotal *prometheus.CounterVec
	whisperDuration      *prometheus.HistogramVec
	transcodesTotal      *prometheus.CounterVec
	transcodeDuration    prometheus.Histogram
	cleanupFailures      prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subrelay_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subrelay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		whisperRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subrelay_whisper_requests_total",
				Help: "Total requests sent to the whisper transcription backend.",
			},
			[]string{"status"},
		),
		whisperDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subrelay_whisper_request_duration_seconds",
				Help:    "Whisper backend request duration in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		transcodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subrelay_transcodes_total",
				Help: "Total ffmpeg audio extractions by outcome.",
			},
			[]string{"outcome"},
		),
		transcodeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "subrelay_transcode_duration_seconds",
				Help:    "ffmpeg audio extraction duration in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		cleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "subrelay_cleanup_failures_total",
				Help: "Temp file or directory deletions that failed and were skipped.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.whisperRequestsTotal,
		m.whisperDuration,
		m.transcodesTotal,
		m.transcodeDuration,
		m.cleanupFailures,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveWhisper(status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.whisperRequestsTotal.WithLabelValues(statusLabel).Inc()
	m.whisperDuration.WithLabelValues(statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveTranscode(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.transcodesTotal.WithLabelValues(outcome).Inc()
	m.transcodeDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
