// Package metrics exposes the service's process-wide Prometheus collectors.
// Job lifecycle metrics are derived from progress events instead; see
// progress/sinks.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	paceDelaySeconds           prometheus.Histogram
	renderDurationSeconds      *prometheus.HistogramVec
	exportsTotal               *prometheus.CounterVec
	activeJobs                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call repeatedly; the Observe functions call it themselves.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_fetches_total",
			Help: "HTTP fetches performed, by host and outcome.",
		}, []string{"host", "outcome"})
		fetchBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_fetch_bytes_total",
			Help: "Response bytes fetched, by host.",
		}, []string{"host"})
		fetchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitesnap_fetch_duration_seconds",
			Help:    "Fetch latency, by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"})
		paceDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitesnap_pace_delay_seconds",
			Help:    "Time crawls spent waiting between requests.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		})
		renderDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitesnap_render_duration_seconds",
			Help:    "Page render latency, by renderer and outcome.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"renderer", "outcome"})
		exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_exports_total",
			Help: "Artifact exports, by kind and outcome.",
		}, []string{"kind", "outcome"})
		activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sitesnap_active_jobs",
			Help: "Jobs currently held by a worker.",
		})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_http_requests_total",
			Help: "API requests, by method and status code.",
		}, []string{"method", "code"})
		httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitesnap_http_request_duration_seconds",
			Help:    "API latency, by method and route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 1, 5},
		}, []string{"method", "route"})
	})
}

// SanitizeHost reduces a URL to a lowercase hostname label, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Outcome labels a fetch by status code; zero means a transport error.
func Outcome(statusCode int) string {
	switch {
	case statusCode == 0:
		return "error"
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(rawURL string, statusCode, bytesFetched int, dur time.Duration) {
	Init()
	outcome := Outcome(statusCode)
	host := SanitizeHost(rawURL)
	fetchesTotal.WithLabelValues(host, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(outcome).Observe(dur.Seconds())
}

// ObservePaceDelay records a wait between two requests of one crawl.
func ObservePaceDelay(d time.Duration) {
	Init()
	paceDelaySeconds.Observe(d.Seconds())
}

// ObserveRender records one page render.
func ObserveRender(renderer string, err error, d time.Duration) {
	Init()
	renderDurationSeconds.WithLabelValues(renderer, result(err)).Observe(d.Seconds())
}

// ObserveExport counts one export attempt.
func ObserveExport(kind string, err error) {
	Init()
	exportsTotal.WithLabelValues(kind, result(err)).Inc()
}

// JobStarted increments the active jobs gauge.
func JobStarted() {
	Init()
	activeJobs.Inc()
}

// JobFinished decrements the active jobs gauge.
func JobFinished() {
	Init()
	activeJobs.Dec()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
