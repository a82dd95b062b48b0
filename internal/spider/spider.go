// Package spider runs a crawl: it feeds seed URLs through the worker pool,
// turns every loaded page into hierarchy records, forwards them to the sink
// under the record cap, and enqueues the links it discovers.
package spider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/clock/system"
	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/diagnostics"
	"github.com/JakeFAU/site-spider/internal/frontier"
	"github.com/JakeFAU/site-spider/internal/hierarchy"
	"github.com/JakeFAU/site-spider/internal/id/uuid"
	"github.com/JakeFAU/site-spider/internal/metrics"
	"github.com/JakeFAU/site-spider/internal/pool"
	"github.com/JakeFAU/site-spider/internal/progress"
)

const tracerName = "github.com/JakeFAU/site-spider/internal/spider"

// Diagnostics paths.
const (
	statScrapedPages   = "scrapedPages"
	statFailedPages    = "failedPages"
	statIndexedRecords = "searchEngine > indexedRecords"
	statTotalErrors    = "searchEngine > totalErrors"
	statCrawl          = "crawl"
)

var (
	// ErrNoSeeds is returned by New when no start URL is configured.
	ErrNoSeeds = errors.New("spider: at least one start url is required")
	// ErrNoExecutor is returned by New without a page executor.
	ErrNoExecutor = errors.New("spider: page executor is required")
	// ErrNoSink is returned by New without a sink.
	ErrNoSink = errors.New("spider: sink is required")
	// ErrAlreadyCrawled is returned by a second Crawl call.
	ErrAlreadyCrawled = errors.New("spider: crawl already ran")
)

// Config bounds one crawl.
type Config struct {
	StartURLs      []string
	AllowedDomains []string
	IgnoreURLs     []string
	MaxConcurrency int
	// Timeout bounds one page task. Zero disables it.
	Timeout time.Duration
	// MaxIndexedRecords caps the records forwarded to the sink. Zero or
	// less means unlimited.
	MaxIndexedRecords int
	// MinResultLength drops records whose content has fewer runes.
	MinResultLength int
	// ExcludeResultPatterns drop records whose content matches any of them.
	ExcludeResultPatterns []string
	FollowLinks           bool
}

// Deps are the collaborators of a Spider. Executor, Sink and Selectors are
// required; everything else is optional.
type Deps struct {
	Executor  crawler.PageExecutor
	Sink      crawler.Sink
	Selectors crawler.Selectors
	Stats     *diagnostics.Tree
	Metrics   *metrics.Metrics
	Progress  progress.Emitter
	// Publisher receives a completion notice on NotifyTopic.
	Publisher   crawler.Publisher
	NotifyTopic string
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
	Tracer      trace.TracerProvider
}

// PageOutcome is what one page task hands to OnPageScraped.
type PageOutcome struct {
	URL        string
	Records    []crawler.ScrapedRecord
	Links      []string
	NoIndex    bool
	StatusCode int
	Duration   time.Duration
}

// Spider owns the state of one crawl. Crawl may be called once.
type Spider struct {
	cfg      Config
	deps     Deps
	logger   *zap.Logger
	tracer   trace.Tracer
	frontier *frontier.Frontier
	pool     *pool.Pool[string, PageOutcome]
	exclude  []*regexp.Regexp

	// runKey is written before the pool launches and read-only afterwards.
	runKey [16]byte

	mu             sync.Mutex
	crawled        bool
	runID          string
	scrapedURLs    int
	failedURLs     int
	indexedRecords int
	lastStartTime  time.Time
}

// New validates cfg and wires the frontier and the pool.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Spider, error) {
	if len(cfg.StartURLs) == 0 {
		return nil, ErrNoSeeds
	}
	if deps.Executor == nil {
		return nil, ErrNoExecutor
	}
	if deps.Sink == nil {
		return nil, ErrNoSink
	}
	if err := deps.Selectors.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.GetTracerProvider()
	}

	exclude := make([]*regexp.Regexp, 0, len(cfg.ExcludeResultPatterns))
	for _, pattern := range cfg.ExcludeResultPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile exclude result pattern %q: %w", pattern, err)
		}
		exclude = append(exclude, re)
	}

	f, err := frontier.New(frontier.Config{
		Seeds:          cfg.StartURLs,
		AllowedDomains: cfg.AllowedDomains,
		IgnorePatterns: cfg.IgnoreURLs,
	})
	if err != nil {
		return nil, err
	}

	s := &Spider{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.Named("spider"),
		tracer:   deps.Tracer.Tracer(tracerName),
		frontier: f,
		exclude:  exclude,
	}
	s.pool = pool.New[string, PageOutcome](pool.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		Timeout:        cfg.Timeout,
	}, logger.Named("pool"))
	s.pool.SetTaskFunction(s.processPage)
	s.pool.SetTaskCompletedCallback(func(ctx context.Context, _ string, page PageOutcome) {
		s.OnPageScraped(ctx, page)
	})
	s.pool.OnTaskStarted(s.taskStarted)
	s.pool.OnTaskFailed(s.taskFailed)
	s.pool.OnTaskSkipped(func(string) { s.frontier.TaskSkipped() })
	return s, nil
}

// Crawl runs the crawl to completion. Only a failing pool launch is
// returned; page and sink failures are logged and counted.
func (s *Spider) Crawl(ctx context.Context) error {
	s.mu.Lock()
	if s.crawled {
		s.mu.Unlock()
		return ErrAlreadyCrawled
	}
	s.crawled = true
	s.mu.Unlock()

	runID, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Warn("generate run id", zap.Error(err))
	}
	started := s.deps.Clock.Now()
	s.runKey = progress.RunIDFromString(runID)
	s.mu.Lock()
	s.runID = runID
	s.mu.Unlock()

	s.logger.Info("crawl started",
		zap.String("run_id", runID),
		zap.Strings("start_urls", s.cfg.StartURLs),
		zap.Int("max_concurrency", s.cfg.MaxConcurrency),
		zap.Int("max_indexed_records", s.cfg.MaxIndexedRecords),
	)
	s.deps.Stats.AddStat(statCrawl+" > runId", diagnostics.Stat{
		Name:           "runId",
		AdditionalData: map[string]any{"value": runID},
	})
	s.deps.Stats.AddStat(statCrawl+" > startedAt", diagnostics.Stat{
		Name:           "startedAt",
		AdditionalData: map[string]any{"value": started.Format(time.RFC3339)},
	})
	s.emit(progress.Event{Stage: progress.StageCrawlStart, Note: runID})

	s.initSink(ctx)

	if err := s.pool.Launch(ctx); err != nil {
		return fmt.Errorf("launch pool: %w", err)
	}
	for _, seed := range s.cfg.StartURLs {
		if !s.frontier.MarkVisited(seed) {
			continue
		}
		s.enqueue(seed)
	}
	if err := s.pool.Wait(); err != nil {
		return fmt.Errorf("wait for pool: %w", err)
	}

	finishCtx := context.WithoutCancel(ctx)
	s.finishSink(finishCtx)
	finished := s.deps.Clock.Now()
	state := s.State()
	s.deps.Stats.AddStat(statCrawl+" > finishedAt", diagnostics.Stat{
		Name:           "finishedAt",
		AdditionalData: map[string]any{"value": finished.Format(time.RFC3339)},
	})
	s.deps.Stats.AddStat(statCrawl+" > visitedUrls", diagnostics.Stat{Name: "visitedUrls", Num: intPtr(state.VisitedURLs)})
	if err := s.deps.Stats.WriteAllStats(finishCtx); err != nil {
		s.logger.Warn("write diagnostics", zap.Error(err))
	}
	s.notify(finishCtx, state, started, finished)
	s.emit(progress.Event{
		Stage:   progress.StageCrawlDone,
		Records: state.IndexedRecords,
		Dur:     finished.Sub(started),
		Note:    runID,
	})
	s.logger.Info("crawl finished",
		zap.String("run_id", runID),
		zap.Int("visited_urls", state.VisitedURLs),
		zap.Int("scraped_urls", state.ScrapedURLs),
		zap.Int("failed_urls", state.FailedURLs),
		zap.Int("indexed_records", state.IndexedRecords),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	return nil
}

// State returns a snapshot of the crawl counters.
func (s *Spider) State() crawler.CrawlState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return crawler.CrawlState{
		RunID:              s.runID,
		VisitedURLs:        s.frontier.VisitedCount(),
		RemainingQueueSize: s.frontier.RemainingQueueSize(),
		ScrapedURLs:        s.scrapedURLs,
		FailedURLs:         s.failedURLs,
		IndexedRecords:     s.indexedRecords,
		Stopping:           s.pool.Stopping(),
		LastStartTime:      s.lastStartTime,
	}
}

// Stop asks the crawl to wind down after the pages in flight.
func (s *Spider) Stop() {
	s.pool.Stop()
}

func (s *Spider) processPage(ctx context.Context, url string) (PageOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "spider.page",
		trace.WithAttributes(attribute.String("url.full", url)),
	)
	defer span.End()

	start := s.deps.Clock.Now()
	s.deps.Metrics.TaskStarted()
	defer func() { s.deps.Metrics.TaskFinished(s.deps.Clock.Now().Sub(start)) }()

	normalized := frontier.Normalize(url)
	set := s.deps.Selectors.ForURL(normalized)
	span.SetAttributes(attribute.String("spider.selector_group", set.Name))
	result, err := s.deps.Executor.Execute(ctx, crawler.PageRequest{URL: url, Selectors: set})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PageOutcome{}, err
	}

	outcome := PageOutcome{
		URL:        url,
		Links:      result.Links,
		NoIndex:    result.NoIndex,
		StatusCode: result.StatusCode,
	}
	if !result.NoIndex {
		outcome.Records = hierarchy.Extract(normalized, result.Matches, hierarchy.Options{
			OnlyContentLevel: set.OnlyContentLevel,
			PageRank:         set.PageRank,
			Metadata:         result.Metadata,
		})
	}
	outcome.Duration = s.deps.Clock.Now().Sub(start)
	span.SetAttributes(
		attribute.Int("spider.records", len(outcome.Records)),
		attribute.Int("spider.links", len(outcome.Links)),
		attribute.Bool("spider.noindex", outcome.NoIndex),
	)
	return outcome, nil
}

func (s *Spider) taskStarted(url string) {
	s.frontier.TaskStarted()
	s.mu.Lock()
	s.lastStartTime = s.deps.Clock.Now()
	s.mu.Unlock()
	s.emit(progress.Event{Stage: progress.StageURLVisited, URL: url})
}

func (s *Spider) taskFailed(url string, err error) {
	s.mu.Lock()
	s.failedURLs++
	s.mu.Unlock()

	s.logger.Warn("page failed", zap.String("url", url), zap.Error(err))
	s.deps.Stats.AddStat(statFailedPages+" > "+url, diagnostics.Stat{
		Name:        url,
		Description: err.Error(),
	})
	s.deps.Metrics.ObservePage(url, metrics.StatusFailed, 0)
	evt := progress.Event{Stage: progress.StagePageFailed, URL: url, Note: err.Error()}
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		evt.StatusCode = statusErr.StatusCode()
	}
	s.emit(evt)
}

// enqueue queues url, logging instead of failing when the pool refuses it.
func (s *Spider) enqueue(url string) {
	ok, err := s.pool.Queue(url)
	if err != nil {
		s.logger.Debug("queue url", zap.String("url", url), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Debug("url dropped while stopping", zap.String("url", url))
	}
}

func (s *Spider) emit(evt progress.Event) {
	if s.deps.Progress == nil {
		return
	}
	evt.RunID = s.runKey
	if evt.TS.IsZero() {
		evt.TS = s.deps.Clock.Now()
	}
	if evt.URL != "" && evt.Site == "" {
		evt.Site = metrics.SanitizeSite(evt.URL)
	}
	s.deps.Progress.Emit(evt)
}

func intPtr(n int) *int { return &n }
