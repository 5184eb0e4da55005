// Package metrics exposes Prometheus collectors for the PERM crawler.
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
	pageFetchDurationSeconds   prometheus.Histogram
	employersTotal             *prometheus.CounterVec
	casesTotal                 *prometheus.CounterVec
	datesTotal                 *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perm_pages_total",
				Help: "Total number of grid pages fetched, labeled by outcome.",
			},
			[]string{"status"},
		)

		pageFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "perm_page_fetch_duration_seconds",
				Help:    "Histogram of grid page fetch latencies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		employersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perm_employers_total",
				Help: "Employers resolved during upsert, labeled by result (created or existing).",
			},
			[]string{"result"},
		)

		casesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perm_cases_total",
				Help: "Cases resolved during upsert, labeled by result (created or existing).",
			},
			[]string{"result"},
		)

		datesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perm_dates_total",
				Help: "Total number of posting days crawled, labeled by status.",
			},
			[]string{"status"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perm_notifications_total",
				Help: "Total number of notifications sent, labeled by status.",
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perm_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObservePage records one page fetch outcome and its latency.
func ObservePage(status string, duration time.Duration) {
	Init()
	pagesTotal.WithLabelValues(status).Inc()
	pageFetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveUpsert records whether the employer and case were created or already present.
func ObserveUpsert(employerCreated, caseCreated bool) {
	Init()
	employersTotal.WithLabelValues(result(employerCreated)).Inc()
	casesTotal.WithLabelValues(result(caseCreated)).Inc()
}

// ObserveDate increments the per-day crawl counter.
func ObserveDate(status string) {
	Init()
	datesTotal.WithLabelValues(status).Inc()
}

// ObserveNotification increments the notification counter.
func ObserveNotification(status string) {
	Init()
	notificationsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

func result(created bool) string {
	if created {
		return "created"
	}
	return "existing"
}
