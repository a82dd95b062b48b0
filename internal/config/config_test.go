package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-spider/internal/crawler"
	"github.com/JakeFAU/site-spider/internal/diagnostics"
	"github.com/JakeFAU/site-spider/internal/sink"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spider.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
crawler:
  start_urls: ["https://example.com"]
selectors:
  default:
    hierarchy:
      l0: "h1"
      content: "p"
`

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
crawler:
  start_urls: ["https://example.com", "https://docs.example.com"]
  allowed_domains: ["example.com", "docs.example.com"]
  ignore_urls: ["\\.pdf$"]
  max_concurrency: 8
  timeout: 30s
  user_agent: test-agent
  max_indexed_records: 500
  min_result_length: 12
  exclude_result_patterns: ["^Cookie"]
  follow_links: false
  respect_robots_txt: false
selectors:
  shared:
    metadata:
      author: "meta[name=author]"
    exclude_selectors: ["nav", "footer"]
    user_agent: shared-agent
    respect_robots_meta: true
  default:
    hierarchy:
      l0: "title"
      l1: "h1"
      content: "p"
  groups:
    - name: blog
      url_pattern: "/blog/"
      page_rank: 5
      only_content_level: false
      hierarchy:
        l0: "h1.post"
        content: "article p"
      basic_auth:
        user: reader
        password: secret
      headers:
        X-Team: docs
    - name: api
      url_pattern: "/api/"
      user_agent: api-agent
      hierarchy:
        content: ".api-doc p"
sink:
  type: file
  merge_foreign: true
  file:
    path: /tmp/records.json
diagnostics:
  enabled: true
  output: gs://bucket/stats.json
logging:
  development: true
  level: debug
fetch:
  timeout: 5s
  domain_qps: 0.5
  burst: 3
  headless:
    enabled: true
    max_parallel: 3
    nav_timeout: 10s
    max_per_domain: 7
    min_text_bytes: 300
    promotion_threshold: 40
server:
  addr: ":9090"
notify:
  project_id: proj
  topic: crawls
tracing:
  enabled: true
  sample_ratio: 0.25
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"https://example.com", "https://docs.example.com"}, cfg.Crawler.StartURLs)
	require.Equal(t, []string{`\.pdf$`}, cfg.Crawler.IgnoreURLs)
	require.Equal(t, 8, cfg.Crawler.MaxConcurrency)
	require.Equal(t, 30*time.Second, cfg.Crawler.Timeout)
	require.Equal(t, 500, cfg.Crawler.MaxIndexedRecords)
	require.Equal(t, 12, cfg.Crawler.MinResultLength)
	require.False(t, cfg.Crawler.FollowLinks)
	require.False(t, cfg.Crawler.RespectRobotsTxt)
	require.Equal(t, sink.TypeFile, cfg.Sink.Type)
	require.True(t, cfg.Sink.MergeForeign)
	require.Equal(t, "/tmp/records.json", cfg.Sink.File.Path)
	require.Equal(t, "gs://bucket/stats.json", cfg.Diagnostics.Output)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	require.InDelta(t, 0.5, cfg.Fetch.DomainQPS, 1e-9)
	require.Equal(t, 3, cfg.Fetch.Burst)
	require.Equal(t, HeadlessConfig{
		Enabled:            true,
		MaxParallel:        3,
		NavTimeout:         10 * time.Second,
		MaxPerDomain:       7,
		MinTextBytes:       300,
		ScriptSharePercent: 40,
	}, cfg.Fetch.Headless)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "crawls", cfg.Notify.Topic)
	require.InDelta(t, 0.25, cfg.Tracing.SampleRatio, 1e-9)

	sel, err := cfg.Selectors.Resolve()
	require.NoError(t, err)

	def := sel.Default
	require.Equal(t, crawler.DefaultGroup, def.Name)
	require.Equal(t, "title", def.Hierarchy.L0)
	require.True(t, def.OnlyContentLevel)
	require.True(t, def.RespectRobotsMeta)
	require.Equal(t, "shared-agent", def.UserAgent)
	require.Equal(t, []string{"nav", "footer"}, def.ExcludeSelectors)
	require.Equal(t, map[string]string{"author": "meta[name=author]"}, def.Metadata)
	require.Nil(t, def.URLPattern)

	require.Len(t, sel.Named, 2)
	blog := sel.Named[0]
	require.Equal(t, "blog", blog.Name)
	require.Equal(t, 5, blog.PageRank)
	require.False(t, blog.OnlyContentLevel)
	require.Equal(t, "h1.post", blog.Hierarchy.L0)
	require.Equal(t, &crawler.BasicAuth{User: "reader", Password: "secret"}, blog.BasicAuth)
	require.Equal(t, "docs", blog.Headers["x-team"])

	api := sel.Named[1]
	require.Equal(t, "api-agent", api.UserAgent)
	require.True(t, api.OnlyContentLevel)
	require.Empty(t, api.Hierarchy.L0)
	require.Equal(t, ".api-doc p", api.Hierarchy.Content)

	require.Equal(t, "blog", sel.ForURL("https://example.com/blog/post").Name)
	require.Equal(t, crawler.DefaultGroup, sel.ForURL("https://example.com/about").Name)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Crawler.MaxConcurrency)
	require.Equal(t, 60*time.Second, cfg.Crawler.Timeout)
	require.True(t, cfg.Crawler.FollowLinks)
	require.True(t, cfg.Crawler.RespectRobotsTxt)
	require.Zero(t, cfg.Crawler.MaxIndexedRecords)
	require.Equal(t, sink.TypeMemory, cfg.Sink.Type)
	require.Equal(t, "site_search_records", cfg.Sink.Postgres.Table)
	require.Equal(t, diagnostics.DefaultOutput, cfg.Diagnostics.Output)
	require.False(t, cfg.Diagnostics.Enabled)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	require.Equal(t, 25*time.Second, cfg.Fetch.Headless.NavTimeout)
	require.Empty(t, cfg.Server.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPIDER_CRAWLER_MAX_CONCURRENCY", "11")
	t.Setenv("SPIDER_LOGGING_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	require.Equal(t, 11, cfg.Crawler.MaxConcurrency)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"no start urls":        func(c *Config) { c.Crawler.StartURLs = nil },
		"zero concurrency":     func(c *Config) { c.Crawler.MaxConcurrency = 0 },
		"negative timeout":     func(c *Config) { c.Crawler.Timeout = -time.Second },
		"negative min length":  func(c *Config) { c.Crawler.MinResultLength = -1 },
		"zero fetch timeout":   func(c *Config) { c.Fetch.Timeout = 0 },
		"negative qps":         func(c *Config) { c.Fetch.DomainQPS = -1 },
		"headless no parallel": func(c *Config) { c.Fetch.Headless = HeadlessConfig{Enabled: true} },
		"topic without project": func(c *Config) {
			c.Notify = NotifyConfig{Topic: "t"}
		},
		"sample ratio":         func(c *Config) { c.Tracing.SampleRatio = 2 },
		"diagnostics output":   func(c *Config) { c.Diagnostics = DiagnosticsConfig{Enabled: true} },
		"unknown sink":         func(c *Config) { c.Sink.Type = "algolia" },
		"missing default":      func(c *Config) { c.Selectors.Default = nil },
		"group without regexp": func(c *Config) { c.Selectors.Groups = []SelectorGroup{{Name: "x"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	h := &HierarchyConfig{Content: "p"}

	_, err := SelectorsConfig{}.Resolve()
	require.ErrorIs(t, err, crawler.ErrMissingDefaultGroup)

	_, err = SelectorsConfig{Default: &SelectorGroup{}}.Resolve()
	require.ErrorIs(t, err, crawler.ErrMissingDefaultGroup)

	_, err = SelectorsConfig{
		Default: &SelectorGroup{Hierarchy: h},
		Groups:  []SelectorGroup{{Name: "bad", URLPattern: "(", Hierarchy: h}},
	}.Resolve()
	require.ErrorContains(t, err, "url_pattern")

	_, err = SelectorsConfig{
		Default: &SelectorGroup{Hierarchy: h},
		Groups:  []SelectorGroup{{Name: "empty", URLPattern: "/x/"}},
	}.Resolve()
	require.ErrorContains(t, err, "no hierarchy selectors")

	sel, err := SelectorsConfig{
		Shared:  SelectorGroup{Hierarchy: h},
		Default: &SelectorGroup{},
		Groups:  []SelectorGroup{{Name: "inherits", URLPattern: "/x/"}},
	}.Resolve()
	require.NoError(t, err)
	require.Equal(t, "p", sel.Default.Hierarchy.Content)
	require.Equal(t, "p", sel.Named[0].Hierarchy.Content)
}
