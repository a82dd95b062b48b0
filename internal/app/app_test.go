package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/app"
	"github.com/JakeFAU/site-spider/internal/config"
	"github.com/JakeFAU/site-spider/internal/crawler"
	pubmemory "github.com/JakeFAU/site-spider/internal/publisher/memory"
	"github.com/JakeFAU/site-spider/internal/sink"
	filesink "github.com/JakeFAU/site-spider/internal/sink/file"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
<h1>Welcome</h1><p>Start here to learn about the project.</p>
<a href="/about">About</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>About</title></head><body>
<h1>About</h1><p>The team behind the project.</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig(t *testing.T, seed string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Crawler: config.CrawlerConfig{
			StartURLs:      []string{seed},
			MaxConcurrency: 2,
			Timeout:        5 * time.Second,
			UserAgent:      "spider-test",
			FollowLinks:    true,
		},
		Selectors: config.SelectorsConfig{
			Default: &config.SelectorGroup{
				Hierarchy: &config.HierarchyConfig{L0: "h1", Content: "p"},
			},
		},
		Sink: sink.Config{Type: sink.TypeFile, File: filesink.Config{Path: filepath.Join(dir, "index.json")}},
		Diagnostics: config.DiagnosticsConfig{
			Enabled: true,
			Output:  filepath.Join(dir, "stats.txt"),
		},
		Fetch: config.FetchConfig{Timeout: 5 * time.Second, DomainQPS: 100, Burst: 10},
		Notify: config.NotifyConfig{Topic: "crawls"},
	}
}

func TestRunCrawlsSiteIntoFileSink(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := baseConfig(t, site.URL+"/")
	pub := pubmemory.New()

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Publisher: pub})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	require.NoError(t, a.Run(context.Background()))

	state := a.Spider().State()
	require.Equal(t, 2, state.ScrapedURLs)
	require.Equal(t, 2, state.VisitedURLs)
	require.Zero(t, state.FailedURLs)

	raw, err := os.ReadFile(cfg.Sink.File.Path)
	require.NoError(t, err)
	var docs []crawler.Document
	require.NoError(t, json.Unmarshal(raw, &docs))
	require.NotEmpty(t, docs)
	var sawAbout bool
	for _, d := range docs {
		sawAbout = sawAbout || strings.HasSuffix(d.URL, "/about")
	}
	require.True(t, sawAbout)

	stats, err := os.ReadFile(cfg.Diagnostics.Output)
	require.NoError(t, err)
	require.Contains(t, string(stats), "scrapedPages")

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "crawls", msgs[0].Topic)
}

func TestRunServesStatusWhileCrawling(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := baseConfig(t, site.URL+"/")
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Notify.Topic = ""

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	require.NoError(t, a.Run(context.Background()))
	require.Equal(t, 2, a.Spider().State().ScrapedURLs)

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	require.True(t, names["go_goroutines"])
}

func TestNewRejectsInvalidSelector(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t, "https://example.com")
	cfg.Selectors.Default.Hierarchy.Content = "p[" // unterminated attribute
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{})
	require.Error(t, err)
}

func TestNewRequiresProjectForPubSubNotifications(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t, "https://example.com")
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{})
	require.ErrorContains(t, err, "init notifications")
}

func TestNewRequiresDefaultSelectors(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t, "https://example.com")
	cfg.Selectors.Default = nil
	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{})
	require.ErrorIs(t, err, crawler.ErrMissingDefaultGroup)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t, "https://example.com")
	cfg.Diagnostics.Enabled = false
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Publisher: pubmemory.New()})
	require.NoError(t, err)
	require.Nil(t, a.Stats())
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
}
