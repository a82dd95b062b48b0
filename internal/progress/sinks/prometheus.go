package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/site-spider/internal/progress"
)

// PrometheusSink turns progress events into crawl-level collectors. Page
// counters live in internal/metrics; this sink tracks runs and per-site
// outcomes as the hub sees them.
type PrometheusSink struct {
	crawlsStarted  prometheus.Counter
	crawlsRunning  prometheus.Gauge
	crawlRuntime   prometheus.Histogram
	pages          *prometheus.CounterVec
	recordsBySite  *prometheus.CounterVec
	recordsIndexed prometheus.Counter

	mu      sync.Mutex
	running map[[16]byte]struct{}
}

// NewPrometheusSink registers the sink's collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		crawlsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spider_progress_crawls_started_total",
			Help: "Crawl runs that have started.",
		}),
		crawlsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spider_progress_crawls_running",
			Help: "Crawl runs currently in progress.",
		}),
		crawlRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spider_progress_crawl_runtime_seconds",
			Help:    "Wall time of finished crawl runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_progress_pages_total",
			Help: "Page outcomes by site, outcome and status class.",
		}, []string{"site", "outcome", "status_class"}),
		recordsBySite: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_progress_records_extracted_total",
			Help: "Records extracted from scraped pages by site.",
		}, []string{"site"}),
		recordsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spider_progress_records_indexed_total",
			Help: "Records accepted by the sink.",
		}),
		running: make(map[[16]byte]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.crawlsStarted,
		s.crawlsRunning,
		s.crawlRuntime,
		s.pages,
		s.recordsBySite,
		s.recordsIndexed,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCrawlStart:
			s.crawlsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.crawlsRunning.Inc()
			}
		case progress.StageCrawlDone:
			if s.track(evt.RunID, false) {
				s.crawlsRunning.Dec()
			}
			if evt.Dur > 0 {
				s.crawlRuntime.Observe(evt.Dur.Seconds())
			}
		case progress.StagePageScraped:
			s.pages.WithLabelValues(site(evt), "scraped", progress.StatusClass(evt.StatusCode)).Inc()
			if evt.Records > 0 {
				s.recordsBySite.WithLabelValues(site(evt)).Add(float64(evt.Records))
			}
		case progress.StagePageFailed:
			s.pages.WithLabelValues(site(evt), "failed", progress.StatusClass(evt.StatusCode)).Inc()
		case progress.StageRecordsIndexed:
			if evt.Records > 0 {
				s.recordsIndexed.Add(float64(evt.Records))
			}
		}
	}
	return nil
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// track records a run as started or finished and reports whether the
// running set changed.
func (s *PrometheusSink) track(id [16]byte, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	switch {
	case start && !ok:
		s.running[id] = struct{}{}
		return true
	case !start && ok:
		delete(s.running, id)
		return true
	}
	return false
}

func site(evt progress.Event) string {
	if evt.Site == "" {
		return "unknown"
	}
	return evt.Site
}
