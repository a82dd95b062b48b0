package spider

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/diagnostics"
	"github.com/JakeFAU/site-spider/internal/progress"
)

// Drop reasons reported to metrics.
const (
	dropTooShort = "too_short"
	dropExcluded = "excluded"
	dropCap      = "cap"
)

// OnPageScraped filters and caps the records of one page, forwards them to
// the sink and enqueues the page's links. Calls are serialized so the cap
// is never overshot by concurrent pages.
func (s *Spider) OnPageScraped(ctx context.Context, page PageOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scrapedURLs++
	pagePath := statScrapedPages + " > " + page.URL
	s.deps.Stats.AddStat(pagePath, diagnostics.Stat{Name: page.URL})
	s.deps.Stats.IncrementStat(pagePath+" > numLinks", len(page.Links))
	s.deps.Stats.IncrementStat(pagePath+" > scrapedContent", len(page.Records))
	s.emit(progress.Event{
		Stage:      progress.StagePageScraped,
		URL:        page.URL,
		Records:    len(page.Records),
		Links:      len(page.Links),
		StatusCode: page.StatusCode,
		Dur:        page.Duration,
	})

	if !page.NoIndex {
		s.indexLocked(ctx, page.URL, pagePath, s.filter(page.Records))
	}

	if s.capReachedLocked() {
		s.logger.Info("record cap reached, stopping",
			zap.Int("indexed_records", s.indexedRecords),
			zap.Int("max_indexed_records", s.cfg.MaxIndexedRecords),
		)
		s.pool.Stop()
		return
	}
	if !s.cfg.FollowLinks {
		return
	}
	for _, link := range page.Links {
		if s.frontier.Admit(link) {
			s.enqueue(link)
		}
	}
}

func (s *Spider) indexLocked(ctx context.Context, url, pagePath string, records []crawler.ScrapedRecord) {
	if s.cfg.MaxIndexedRecords > 0 {
		remaining := max(s.cfg.MaxIndexedRecords-s.indexedRecords, 0)
		if len(records) > remaining {
			s.deps.Metrics.AddDropped(dropCap, len(records)-remaining)
			records = records[:remaining]
		}
	}
	if len(records) == 0 {
		return
	}
	if err := s.deps.Sink.AddRecords(ctx, records); err != nil {
		s.logger.Error("add records", zap.String("url", url), zap.Int("records", len(records)), zap.Error(err))
		s.deps.Stats.Increment(statTotalErrors)
		s.deps.Metrics.ObserveSinkError("add_records")
		return
	}
	s.indexedRecords += len(records)
	s.deps.Stats.IncrementStat(pagePath+" > indexedContent", len(records))
	s.deps.Stats.IncrementStat(statIndexedRecords, len(records))
	s.deps.Metrics.AddIndexed(len(records))
	s.emit(progress.Event{Stage: progress.StageRecordsIndexed, URL: url, Records: len(records)})
}

func (s *Spider) capReachedLocked() bool {
	return s.cfg.MaxIndexedRecords > 0 && s.indexedRecords >= s.cfg.MaxIndexedRecords
}

// filter drops records that are too short or match an exclude pattern.
func (s *Spider) filter(records []crawler.ScrapedRecord) []crawler.ScrapedRecord {
	if s.cfg.MinResultLength <= 0 && len(s.exclude) == 0 {
		return records
	}
	kept := make([]crawler.ScrapedRecord, 0, len(records))
	for _, r := range records {
		if utf8.RuneCountInString(r.Content) < s.cfg.MinResultLength {
			s.deps.Metrics.AddDropped(dropTooShort, 1)
			continue
		}
		if s.excluded(r.Content) {
			s.deps.Metrics.AddDropped(dropExcluded, 1)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func (s *Spider) excluded(content string) bool {
	for _, re := range s.exclude {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Spider) initSink(ctx context.Context) {
	initializer, ok := s.deps.Sink.(crawler.Initializer)
	if !ok {
		return
	}
	if err := initializer.Init(ctx); err != nil {
		s.logger.Error("init sink", zap.Error(err))
		s.deps.Stats.Increment(statTotalErrors)
		s.deps.Metrics.ObserveSinkError("init")
	}
}

func (s *Spider) finishSink(ctx context.Context) {
	fin, ok := s.deps.Sink.(crawler.Finisher)
	if !ok {
		return
	}
	if err := fin.Finish(ctx); err != nil {
		s.logger.Error("finish sink", zap.Error(err))
		s.deps.Stats.Increment(statTotalErrors)
		s.deps.Metrics.ObserveSinkError("finish")
	}
}
