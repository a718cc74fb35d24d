// Package metrics exposes Prometheus collectors for the job scraper service.
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
	scrapesTotal               *prometheus.CounterVec
	scrapeDurationSeconds      *prometheus.HistogramVec
	scrapeRetriesTotal         *prometheus.CounterVec
	extractionFallbacksTotal   *prometheus.CounterVec
	inflightScrapes            prometheus.Gauge
	renderDurationSeconds      *prometheus.HistogramVec
	renderPromotionsTotal      *prometheus.CounterVec
	browserLaunchesTotal       *prometheus.CounterVec
	browserLaunchSeconds       prometheus.Histogram
	browserUp                  prometheus.Gauge
	batchesTotal               *prometheus.CounterVec
	batchSize                  prometheus.Histogram
	snapshotsTotal             *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_scrapes_total",
				Help: "Total number of page scrapes, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscraper_scrape_duration_seconds",
				Help:    "Histogram of end-to-end scrape durations including retries.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"outcome"},
		)

		scrapeRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_scrape_retries_total",
				Help: "Total number of scrape retries, labeled by site.",
			},
			[]string{"site"},
		)

		extractionFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_extraction_fallbacks_total",
				Help: "Heuristic fallbacks, labeled by the field that triggered them.",
			},
			[]string{"field"},
		)

		inflightScrapes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobscraper_inflight_scrapes",
				Help: "Number of scrapes currently running.",
			},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscraper_render_duration_seconds",
				Help:    "Histogram of single render attempts, labeled by renderer and outcome.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"renderer", "outcome"},
		)

		renderPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_render_promotions_total",
				Help: "Static probes promoted to the headless renderer, labeled by reason.",
			},
			[]string{"reason"},
		)

		browserLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_browser_launches_total",
				Help: "Total browser launches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		browserLaunchSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobscraper_browser_launch_seconds",
				Help:    "Histogram of browser launch durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		browserUp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobscraper_browser_up",
				Help: "1 while a shared browser instance is running.",
			},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_batch_urls_total",
				Help: "URLs processed by batch scrapes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		batchSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobscraper_batch_size",
				Help:    "Histogram of batch sizes.",
				Buckets: []float64{1, 2, 3, 5, 10, 25, 50},
			},
		)

		snapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscraper_snapshots_total",
				Help: "Archived page snapshots, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscraper_rate_limit_delays_seconds",
				Help:    "Histogram of per-host politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
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

// ObserveScrape records the terminal outcome of one page scrape.
func ObserveScrape(site, outcome string, duration time.Duration) {
	Init()
	scrapesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
	scrapeDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveScrapeRetry counts a retried scrape attempt.
func ObserveScrapeRetry(site string) {
	Init()
	scrapeRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveExtractionFallback counts a heuristic fallback caused by field.
func ObserveExtractionFallback(field string) {
	Init()
	extractionFallbacksTotal.WithLabelValues(field).Inc()
}

// IncInflightScrapes increments the in-flight scrapes gauge.
func IncInflightScrapes() {
	Init()
	inflightScrapes.Inc()
}

// DecInflightScrapes decrements the in-flight scrapes gauge.
func DecInflightScrapes() {
	Init()
	inflightScrapes.Dec()
}

// ObserveRender records one render attempt.
func ObserveRender(renderer, outcome string, duration time.Duration) {
	Init()
	renderDurationSeconds.WithLabelValues(renderer, outcome).Observe(duration.Seconds())
}

// ObserveRenderPromotion counts a static probe promoted to headless rendering.
func ObserveRenderPromotion(reason string) {
	Init()
	renderPromotionsTotal.WithLabelValues(reason).Inc()
}

// ObserveBrowserLaunch records a browser launch attempt.
func ObserveBrowserLaunch(outcome string, duration time.Duration) {
	Init()
	browserLaunchesTotal.WithLabelValues(outcome).Inc()
	browserLaunchSeconds.Observe(duration.Seconds())
}

// SetBrowserUp flips the browser liveness gauge.
func SetBrowserUp(up bool) {
	Init()
	if up {
		browserUp.Set(1)
		return
	}
	browserUp.Set(0)
}

// ObserveBatch records the size of a batch and the outcome of each of its URLs.
func ObserveBatch(size, failures int) {
	Init()
	batchSize.Observe(float64(size))
	if ok := size - failures; ok > 0 {
		batchesTotal.WithLabelValues("success").Add(float64(ok))
	}
	if failures > 0 {
		batchesTotal.WithLabelValues("failure").Add(float64(failures))
	}
}

// ObserveSnapshot counts an archived (or failed) page snapshot.
func ObserveSnapshot(outcome string) {
	Init()
	snapshotsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
