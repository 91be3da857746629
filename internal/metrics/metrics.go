// Package metrics exposes Prometheus collectors for the scrape engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperRunsTotal           *prometheus.CounterVec
	scraperCandidatesTotal     *prometheus.CounterVec
	scraperJobsTotal           *prometheus.CounterVec
	scraperFetchSeconds        *prometheus.HistogramVec
	scraperRateLimitWaitSecs   *prometheus.HistogramVec
	scraperActiveWorkers       prometheus.Gauge
	scraperQueueDepth          prometheus.Gauge
	scraperEngineState         *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Candidate outcome labels used with AddCandidates.
const (
	OutcomeFound     = "found"
	OutcomeSaved     = "saved"
	OutcomeInvalid   = "dropped_invalid"
	OutcomeDuplicate = "dropped_duplicate"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total fetch runs, labeled by source and run status.",
			},
			[]string{"source", "status"},
		)

		scraperCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_candidates_total",
				Help: "Candidate records flowing through the pipeline, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scraperJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total scrape jobs reaching a terminal status.",
			},
			[]string{"status"},
		)

		scraperFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_fetch_duration_seconds",
				Help:    "Histogram of target fetch latencies, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		scraperRateLimitWaitSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_wait_seconds",
				Help:    "Histogram of time spent blocked on the per-domain rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"domain"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently executing a job.",
			},
		)

		scraperQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_queue_depth",
				Help: "Jobs waiting in the work queue.",
			},
		)

		scraperEngineState = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scraper_engine_state",
				Help: "Engine status flag; exactly one series reads 1.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun increments the run counter for one finished fetch attempt.
func RecordRun(source, status string) {
	if scraperRunsTotal == nil {
		return
	}
	scraperRunsTotal.WithLabelValues(source, status).Inc()
}

// AddCandidates counts candidates by pipeline outcome.
func AddCandidates(outcome string, n int) {
	if scraperCandidatesTotal == nil || n <= 0 {
		return
	}
	scraperCandidatesTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordJob increments the job counter for the given terminal status.
func RecordJob(status string) {
	if scraperJobsTotal == nil {
		return
	}
	scraperJobsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records the latency of one target fetch.
func ObserveFetch(mode string, duration time.Duration) {
	if scraperFetchSeconds == nil {
		return
	}
	scraperFetchSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveRateLimitWait records the duration of a rate limit wait.
func ObserveRateLimitWait(domain string, duration time.Duration) {
	if scraperRateLimitWaitSecs == nil {
		return
	}
	scraperRateLimitWaitSecs.WithLabelValues(domain).Observe(duration.Seconds())
}

// SetActiveWorkers publishes the active worker gauge.
func SetActiveWorkers(n int) {
	if scraperActiveWorkers == nil {
		return
	}
	scraperActiveWorkers.Set(float64(n))
}

// SetQueueDepth publishes the pending-work gauge.
func SetQueueDepth(n int) {
	if scraperQueueDepth == nil {
		return
	}
	scraperQueueDepth.Set(float64(n))
}

// SetEngineStatus flips the engine status flag series.
func SetEngineStatus(status string) {
	if scraperEngineState == nil {
		return
	}
	for _, s := range []string{"idle", "running", "paused"} {
		v := 0.0
		if s == status {
			v = 1
		}
		scraperEngineState.WithLabelValues(s).Set(v)
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
