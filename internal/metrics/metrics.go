// Package metrics exposes Prometheus collectors for the catalog service.
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
	probesTotal                *prometheus.CounterVec
	probeDurationSeconds       *prometheus.HistogramVec
	checkJobsTotal             *prometheus.CounterVec
	crawlJobsTotal             *prometheus.CounterVec
	crawlPagesTotal            *prometheus.CounterVec
	catalogFilesTotal          *prometheus.CounterVec
	problematicURIsTotal       *prometheus.CounterVec
	workItemsTotal             *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	politenessDelaySeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		probesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_probes_total",
				Help: "Total availability probes, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		probeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_probe_duration_seconds",
				Help:    "Histogram of availability probe latencies, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		checkJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_check_jobs_total",
				Help: "Total availability check jobs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawl_jobs_total",
				Help: "Total crawl runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawl_pages_total",
				Help: "Total directory listings fetched, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		catalogFilesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_files_total",
				Help: "Total cataloging attempts, labeled by result.",
			},
			[]string{"result"},
		)

		problematicURIsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_problematic_uris_total",
				Help: "Total problematic URIs recorded, labeled by error type.",
			},
			[]string{"type"},
		)

		workItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_work_items_total",
				Help: "Total queued work items executed, labeled by result.",
			},
			[]string{"result"},
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

		politenessDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_politeness_delay_seconds",
				Help:    "Histogram of politeness waits between page fetches.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
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

// ObserveProbe records one availability probe.
func ObserveProbe(rawURL, outcome string, duration time.Duration) {
	Init()
	probesTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
	probeDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveCheckJob increments the check job counter for a terminal status.
func ObserveCheckJob(status string) {
	Init()
	checkJobsTotal.WithLabelValues(status).Inc()
}

// ObserveCrawlJob increments the crawl counter for a terminal status.
func ObserveCrawlJob(status string) {
	Init()
	crawlJobsTotal.WithLabelValues(status).Inc()
}

// ObservePage records one directory listing fetch.
func ObservePage(rawURL, result string) {
	Init()
	crawlPagesTotal.WithLabelValues(SanitizeSite(rawURL), result).Inc()
}

// ObserveCatalogFile records one cataloging attempt.
func ObserveCatalogFile(result string) {
	Init()
	catalogFilesTotal.WithLabelValues(result).Inc()
}

// ObserveProblematicURI records one diagnostic row.
func ObserveProblematicURI(errorType string) {
	Init()
	problematicURIsTotal.WithLabelValues(errorType).Inc()
}

// ObserveWorkItem records the result of one queued work item.
func ObserveWorkItem(result string) {
	Init()
	workItemsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePolitenessDelay records the duration of a politeness wait.
func ObservePolitenessDelay(site string, duration time.Duration) {
	Init()
	politenessDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}
