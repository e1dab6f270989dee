// Package metrics exposes Prometheus collectors for the job crawler.
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
	pagesTotal                 *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	recordsTotal               *prometheus.CounterVec
	strategyTotal              *prometheus.CounterVec
	challengesTotal            *prometheus.CounterVec
	retriesTotal               *prometheus.CounterVec
	identitiesRetiredTotal     prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_pages_total",
				Help: "Total number of fetch attempts, labeled by task kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by task kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"kind"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_records_total",
				Help: "Candidate records seen by the ledger, labeled by result.",
			},
			[]string{"result"},
		)

		strategyTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_extraction_strategy_total",
				Help: "Documents resolved by each extraction strategy.",
			},
			[]string{"strategy"},
		)

		challengesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_challenges_total",
				Help: "Challenge verdicts, labeled by verdict.",
			},
			[]string{"verdict"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobcrawler_retries_total",
				Help: "Retry decisions, labeled by failure class and resulting state.",
			},
			[]string{"class", "state"},
		)

		identitiesRetiredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobcrawler_identities_retired_total",
				Help: "Identities retired by rotation or thresholds.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobcrawler_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobcrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
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
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(site, kind, outcome string, bytesFetched int, duration time.Duration) {
	pagesTotal.WithLabelValues(kind, outcome).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveRecord counts a ledger decision for one candidate.
func ObserveRecord(result string) {
	recordsTotal.WithLabelValues(result).Inc()
}

// ObserveStrategy counts the strategy that produced a document's candidates.
func ObserveStrategy(strategy string) {
	if strategy == "" {
		strategy = "none"
	}
	strategyTotal.WithLabelValues(strategy).Inc()
}

// ObserveChallenge counts a non-OK detector verdict.
func ObserveChallenge(verdict string) {
	challengesTotal.WithLabelValues(verdict).Inc()
}

// ObserveRetry counts a retry controller decision.
func ObserveRetry(class, state string) {
	retriesTotal.WithLabelValues(class, state).Inc()
}

// ObserveIdentityRetired counts a retired identity.
func ObserveIdentityRetired() {
	identitiesRetiredTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaysSeconds.Observe(duration.Seconds())
}
