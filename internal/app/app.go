// Package app builds the long-lived services of a crawl run from the loaded
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/config"
	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/diagnostics"
	"github.com/JakeFAU/site-spider/internal/executor"
	collyfetcher "github.com/JakeFAU/site-spider/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/site-spider/internal/fetcher/headless"
	"github.com/JakeFAU/site-spider/internal/headless/detector"
	"github.com/JakeFAU/site-spider/internal/metrics"
	"github.com/JakeFAU/site-spider/internal/policy/budget"
	"github.com/JakeFAU/site-spider/internal/policy/ratelimit"
	"github.com/JakeFAU/site-spider/internal/progress"
	progresssinks "github.com/JakeFAU/site-spider/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/site-spider/internal/publisher/pubsub"
	"github.com/JakeFAU/site-spider/internal/robots"
	"github.com/JakeFAU/site-spider/internal/server"
	"github.com/JakeFAU/site-spider/internal/sink"
	"github.com/JakeFAU/site-spider/internal/spider"
	"github.com/JakeFAU/site-spider/internal/storage"
	"github.com/JakeFAU/site-spider/internal/telemetry"
)

// Options override collaborators, mostly for tests.
type Options struct {
	// Transport replaces the HTTP transport of the probe fetcher and the
	// robots.txt client.
	Transport http.RoundTripper
	// GCSClients builds Cloud Storage clients for the gcs sink and gs://
	// diagnostics output.
	GCSClients storage.ClientFactory
	// Publisher replaces the Pub/Sub publisher for crawl notifications.
	Publisher crawler.Publisher
}

// App holds the services of one crawl run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	stats    *diagnostics.Tree
	sink     crawler.Sink
	hub      *progress.Hub
	spider   *spider.Spider
	server   *server.Server

	closeOnce sync.Once
	closers   []func(context.Context) error
}

// New wires every service. Any error here is a configuration error and
// nothing has been fetched yet.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	if err := a.build(ctx, opts); err != nil {
		if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warn("close partially built app", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg, logger := a.cfg, a.logger

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: "site-spider", SampleRatio: cfg.Tracing.SampleRatio})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, tp.Shutdown)
	}

	selectors, err := cfg.Selectors.Resolve()
	if err != nil {
		return err
	}
	for _, set := range append([]crawler.SelectorSet{selectors.Default}, selectors.Named...) {
		if err := executor.ValidateSelectors(set); err != nil {
			return err
		}
	}

	exec, err := a.buildExecutor(opts)
	if err != nil {
		return err
	}

	a.sink, err = sink.Open(ctx, cfg.Sink, sink.Deps{Logger: logger, GCSClients: opts.GCSClients})
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	a.closers = append(a.closers, func(ctx context.Context) error { return sink.Close(ctx, a.sink) })

	if cfg.Diagnostics.Enabled {
		target, err := storage.Open(ctx, cfg.Diagnostics.Output, opts.GCSClients, logger)
		if err != nil {
			return fmt.Errorf("open diagnostics output: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return target.Close() })
		a.stats = diagnostics.New(target.Store, target.Key, logger.Named("diagnostics"))
	}

	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		progresssinks.NewLogSink(logger.Named("progress")),
		promSink,
	)
	a.closers = append(a.closers, a.hub.Close)

	publisher := opts.Publisher
	if publisher == nil && cfg.Notify.Topic != "" {
		p, err := pubsubpublisher.Dial(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return fmt.Errorf("init notifications: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		publisher = p
	}

	a.spider, err = spider.New(spider.Config{
		StartURLs:             cfg.Crawler.StartURLs,
		AllowedDomains:        cfg.Crawler.AllowedDomains,
		IgnoreURLs:            cfg.Crawler.IgnoreURLs,
		MaxConcurrency:        cfg.Crawler.MaxConcurrency,
		Timeout:               cfg.Crawler.Timeout,
		MaxIndexedRecords:     cfg.Crawler.MaxIndexedRecords,
		MinResultLength:       cfg.Crawler.MinResultLength,
		ExcludeResultPatterns: cfg.Crawler.ExcludeResultPatterns,
		FollowLinks:           cfg.Crawler.FollowLinks,
	}, spider.Deps{
		Executor:    exec,
		Sink:        a.sink,
		Selectors:   selectors,
		Stats:       a.stats,
		Metrics:     a.metrics,
		Progress:    a.hub,
		Publisher:   publisher,
		NotifyTopic: cfg.Notify.Topic,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Server.Addr != "" {
		a.server = server.New(server.Deps{
			Crawl:    a.spider,
			Stats:    a.stats,
			Gatherer: a.registry,
			Metrics:  a.metrics,
			Logger:   logger,
		})
	}
	return nil
}

func (a *App) buildExecutor(opts Options) (*executor.Executor, error) {
	cfg := a.cfg
	deps := executor.Deps{
		Probe: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Fetch.Timeout,
			Transport: opts.Transport,
		}),
		Robots: robots.New(cfg.Crawler.RespectRobotsTxt, cfg.Crawler.UserAgent,
			&http.Client{Timeout: cfg.Fetch.Timeout, Transport: opts.Transport},
			a.logger.Named("robots"),
		),
		Limiter: ratelimit.New(ratelimit.Config{DomainQPS: cfg.Fetch.DomainQPS, Burst: cfg.Fetch.Burst}, a.metrics),
		Metrics: a.metrics,
	}
	if h := cfg.Fetch.Headless; h.Enabled {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       h.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: h.NavTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { renderer.Close(); return nil })
		deps.Headless = renderer
		deps.Detector = detector.NewHeuristic(h.MinTextBytes, h.ScriptSharePercent)
		deps.Budget = budget.NewHeadless(h.MaxPerDomain)
	}
	return executor.New(deps, a.logger.Named("executor"))
}

// Spider returns the crawl orchestrator.
func (a *App) Spider() *spider.Spider { return a.spider }

// Stats returns the diagnostics tree, nil when disabled.
func (a *App) Stats() *diagnostics.Tree { return a.stats }

// Registry returns the Prometheus registry of the run.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Run crawls to completion, serving the status endpoints meanwhile when
// server.addr is set.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return a.spider.Crawl(ctx)
	}
	serveCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Serve(serveCtx, a.cfg.Server.Addr) }()

	crawlErr := a.spider.Crawl(ctx)
	stopServer()
	if err := <-serveErr; err != nil {
		a.logger.Warn("status server", zap.Error(err))
	}
	return crawlErr
}

// Close releases every service in reverse construction order. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
