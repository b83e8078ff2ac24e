// Package metrics exposes Prometheus collectors for the crawl scheduler and the
// status HTTP server.
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
	schedulerJobsTotal         *prometheus.CounterVec
	schedulerActiveJobs        prometheus.Gauge
	schedulerPendingJobs       prometheus.Gauge
	schedulerRetriesTotal      prometheus.Counter
	schedulerDeadLettersTotal  prometheus.Counter
	schedulerRateLimitDelaySec prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		schedulerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_jobs_total",
				Help: "Total number of job executions, labeled by result.",
			},
			[]string{"result"},
		)

		schedulerActiveJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_active_jobs",
				Help: "Number of jobs currently executing.",
			},
		)

		schedulerPendingJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_pending_jobs",
				Help: "Number of jobs waiting in the dispatch queue.",
			},
		)

		schedulerRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_retries_total",
				Help: "Total number of failed jobs scheduled for another attempt.",
			},
		)

		schedulerDeadLettersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_dead_letters_total",
				Help: "Total number of jobs that exhausted their retries.",
			},
		)

		schedulerRateLimitDelaySec = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scheduler_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting on the request rate limit.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of status server requests.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status server request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveJob counts a finished job execution ("success" or "failure").
func ObserveJob(result string) {
	Init()
	schedulerJobsTotal.WithLabelValues(result).Inc()
}

// IncActiveJobs increments the active jobs gauge.
func IncActiveJobs() {
	Init()
	schedulerActiveJobs.Inc()
}

// DecActiveJobs decrements the active jobs gauge.
func DecActiveJobs() {
	Init()
	schedulerActiveJobs.Dec()
}

// SetPendingJobs records the current queue depth.
func SetPendingJobs(n int) {
	Init()
	schedulerPendingJobs.Set(float64(n))
}

// ObserveRetry counts a job re-queued after failure.
func ObserveRetry() {
	Init()
	schedulerRetriesTotal.Inc()
}

// ObserveDeadLetter counts a job moved to the dead-letter list.
func ObserveDeadLetter() {
	Init()
	schedulerDeadLettersTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	schedulerRateLimitDelaySec.Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics for a status server request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
