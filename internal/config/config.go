// Package config loads and validates spider configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/site-spider/internal/diagnostics"
	"github.com/JakeFAU/site-spider/internal/sink"
)

// Config captures every knob of a crawl run.
type Config struct {
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Selectors   SelectorsConfig   `mapstructure:"selectors"`
	Sink        sink.Config       `mapstructure:"sink"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Server      ServerConfig      `mapstructure:"server"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// CrawlerConfig bounds the crawl.
type CrawlerConfig struct {
	StartURLs             []string      `mapstructure:"start_urls"`
	AllowedDomains        []string      `mapstructure:"allowed_domains"`
	IgnoreURLs            []string      `mapstructure:"ignore_urls"`
	MaxConcurrency        int           `mapstructure:"max_concurrency"`
	Timeout               time.Duration `mapstructure:"timeout"`
	UserAgent             string        `mapstructure:"user_agent"`
	MaxIndexedRecords     int           `mapstructure:"max_indexed_records"`
	MinResultLength       int           `mapstructure:"min_result_length"`
	ExcludeResultPatterns []string      `mapstructure:"exclude_result_patterns"`
	FollowLinks           bool          `mapstructure:"follow_links"`
	RespectRobotsTxt      bool          `mapstructure:"respect_robots_txt"`
}

// DiagnosticsConfig controls the stats dump. Output is a local path or a
// gs://bucket/object URL.
type DiagnosticsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

// LoggingConfig toggles zap development features and the level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig configures the page transport.
type FetchConfig struct {
	Timeout   time.Duration  `mapstructure:"timeout"`
	DomainQPS float64        `mapstructure:"domain_qps"`
	Burst     int            `mapstructure:"burst"`
	Headless  HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	NavTimeout         time.Duration `mapstructure:"nav_timeout"`
	MaxPerDomain       int           `mapstructure:"max_per_domain"`
	MinTextBytes       int           `mapstructure:"min_text_bytes"`
	ScriptSharePercent int           `mapstructure:"promotion_threshold"`
}

// ServerConfig enables the status server when Addr is set.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// NotifyConfig names the Pub/Sub topic that receives crawl completions.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk and the environment. Environment variables
// use the SPIDER_ prefix, e.g. SPIDER_CRAWLER_MAX_CONCURRENCY.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.start_urls", []string{})
	v.SetDefault("crawler.max_concurrency", 5)
	v.SetDefault("crawler.timeout", 60*time.Second)
	v.SetDefault("crawler.user_agent", "site-spider/1.0 (+https://github.com/JakeFAU/site-spider)")
	v.SetDefault("crawler.max_indexed_records", 0)
	v.SetDefault("crawler.min_result_length", 0)
	v.SetDefault("crawler.follow_links", true)
	v.SetDefault("crawler.respect_robots_txt", true)
	v.SetDefault("sink.type", sink.TypeMemory)
	v.SetDefault("sink.merge_foreign", false)
	v.SetDefault("sink.postgres.table", "site_search_records")
	v.SetDefault("sink.postgres.max_conns", 4)
	v.SetDefault("sink.mongo.collection", "records")
	v.SetDefault("diagnostics.enabled", false)
	v.SetDefault("diagnostics.output", diagnostics.DefaultOutput)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.domain_qps", 2.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.headless.enabled", false)
	v.SetDefault("fetch.headless.max_parallel", 2)
	v.SetDefault("fetch.headless.nav_timeout", 25*time.Second)
	v.SetDefault("fetch.headless.max_per_domain", 0)
	v.SetDefault("fetch.headless.min_text_bytes", 200)
	v.SetDefault("fetch.headless.promotion_threshold", 25)
	v.SetDefault("server.addr", "")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Crawler.StartURLs) == 0 {
		return fmt.Errorf("crawler.start_urls must not be empty")
	}
	if c.Crawler.MaxConcurrency <= 0 {
		return fmt.Errorf("crawler.max_concurrency must be > 0")
	}
	if c.Crawler.Timeout < 0 {
		return fmt.Errorf("crawler.timeout must be >= 0")
	}
	if c.Crawler.MinResultLength < 0 {
		return fmt.Errorf("crawler.min_result_length must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.DomainQPS < 0 {
		return fmt.Errorf("fetch.domain_qps must be >= 0")
	}
	if c.Fetch.Headless.Enabled && c.Fetch.Headless.MaxParallel <= 0 {
		return fmt.Errorf("fetch.headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Diagnostics.Enabled && strings.TrimSpace(c.Diagnostics.Output) == "" {
		return fmt.Errorf("diagnostics.output must be set when diagnostics are enabled")
	}
	if err := c.Sink.Validate(); err != nil {
		return err
	}
	if _, err := c.Selectors.Resolve(); err != nil {
		return err
	}
	return nil
}
