// Package metrics exposes Prometheus collectors for the spider.
package metrics

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Page outcome labels.
const (
	StatusScraped = "scraped"
	StatusFailed  = "failed"
	StatusNoIndex = "noindex"
)

// Metrics groups the spider's collectors. A nil *Metrics records nothing.
type Metrics struct {
	pagesTotal         *prometheus.CounterVec
	bytesTotal         *prometheus.CounterVec
	recordsIndexed     prometheus.Counter
	recordsDropped     *prometheus.CounterVec
	sinkErrors         *prometheus.CounterVec
	tasksInFlight      prometheus.Gauge
	taskDuration       prometheus.Histogram
	headlessPromotions prometheus.Counter
	rateLimitDelay     *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		pagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_pages_total",
			Help: "Pages processed, labeled by site and outcome.",
		}, []string{"site", "status"}),
		bytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_bytes_total",
			Help: "Bytes fetched, labeled by site.",
		}, []string{"site"}),
		recordsIndexed: f.NewCounter(prometheus.CounterOpts{
			Name: "spider_records_indexed_total",
			Help: "Records accepted by the sink.",
		}),
		recordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_records_dropped_total",
			Help: "Records discarded before reaching the sink, labeled by reason.",
		}, []string{"reason"}),
		sinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_sink_errors_total",
			Help: "Sink failures, labeled by lifecycle operation.",
		}, []string{"operation"}),
		tasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "spider_tasks_in_flight",
			Help: "Page tasks currently executing.",
		}),
		taskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spider_task_duration_seconds",
			Help:    "Wall time of one page task.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		headlessPromotions: f.NewCounter(prometheus.CounterOpts{
			Name: "spider_headless_promotions_total",
			Help: "Pages re-rendered in a headless browser.",
		}),
		rateLimitDelay: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spider_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-domain rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"domain"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_http_requests_total",
			Help: "Status server requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spider_http_request_duration_seconds",
			Help:    "Status server latency, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
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

// ObservePage counts one page outcome and the bytes it cost.
func (m *Metrics) ObservePage(rawURL, status string, bytesFetched int) {
	if m == nil {
		return
	}
	site := SanitizeSite(rawURL)
	m.pagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		m.bytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// AddIndexed counts records accepted by the sink.
func (m *Metrics) AddIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsIndexed.Add(float64(n))
}

// AddDropped counts records removed by filters or the cap.
func (m *Metrics) AddDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsDropped.WithLabelValues(reason).Add(float64(n))
}

// ObserveSinkError counts a failed sink call.
func (m *Metrics) ObserveSinkError(operation string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(operation).Inc()
}

// TaskStarted marks a page task as running.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

// TaskFinished marks a page task as done.
func (m *Metrics) TaskFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
	m.taskDuration.Observe(d.Seconds())
}

// ObserveHeadlessPromotion counts a headless re-render.
func (m *Metrics) ObserveHeadlessPromotion() {
	if m == nil {
		return
	}
	m.headlessPromotions.Inc()
}

// ObserveRateLimitDelay records a rate limiter wait.
func (m *Metrics) ObserveRateLimitDelay(domain string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitDelay.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveHTTPRequest records one status server request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
