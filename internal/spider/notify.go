package spider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/crawler"
)

// Completion is published when a crawl finishes.
type Completion struct {
	RunID          string    `json:"run_id"`
	ScrapedURLs    int       `json:"scraped_urls"`
	IndexedRecords int       `json:"indexed_records"`
	VisitedURLs    int       `json:"visited_urls"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

func (s *Spider) notify(ctx context.Context, state crawler.CrawlState, started, finished time.Time) {
	if s.deps.Publisher == nil || s.deps.NotifyTopic == "" {
		return
	}
	msg := Completion{
		RunID:          state.RunID,
		ScrapedURLs:    state.ScrapedURLs,
		IndexedRecords: state.IndexedRecords,
		VisitedURLs:    state.VisitedURLs,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	id, err := s.deps.Publisher.Publish(ctx, s.deps.NotifyTopic, msg)
	if err != nil {
		s.logger.Warn("publish crawl completion", zap.String("topic", s.deps.NotifyTopic), zap.Error(err))
		return
	}
	s.logger.Info("crawl completion published", zap.String("topic", s.deps.NotifyTopic), zap.String("message_id", id))
}
