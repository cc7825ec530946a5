// Package config loads and validates sitesnap configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/job"
	"github.com/JakeFAU/sitesnap/internal/logging"
	"github.com/JakeFAU/sitesnap/internal/progress"
	"github.com/JakeFAU/sitesnap/internal/telemetry"
)

// EnvPrefix namespaces environment overrides, e.g. SITESNAP_SERVER_PORT.
const EnvPrefix = "SITESNAP"

// Config captures every service knob.
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Crawler  CrawlerConfig    `mapstructure:"crawler"`
	Detector DetectorConfig   `mapstructure:"detector"`
	Sitemap  SitemapConfig    `mapstructure:"sitemap"`
	Render   RenderConfig     `mapstructure:"render"`
	Export   ExportConfig     `mapstructure:"export"`
	DB       DBConfig         `mapstructure:"db"`
	PubSub   PubSubConfig     `mapstructure:"pubsub"`
	Progress progress.Config  `mapstructure:"progress"`
	Logging  logging.Config   `mapstructure:"logging"`
	Tracing  telemetry.Config `mapstructure:"tracing"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is the listen address for Port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// CrawlerConfig governs fetching, the worker pool and per-job defaults.
type CrawlerConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	// SitemapRecordFailures emits failed records for sitemap URLs that
	// could not be fetched instead of skipping them.
	SitemapRecordFailures bool `mapstructure:"sitemap_record_failures"`
	// Defaults fill the crawl config of requests that omit it.
	Defaults crawler.CrawlConfig `mapstructure:"defaults"`
}

// DetectorConfig tunes strategy detection.
type DetectorConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// SitemapConfig bounds sitemap index expansion.
type SitemapConfig struct {
	MaxDepth      int `mapstructure:"max_depth"`
	MaxChildren   int `mapstructure:"max_children"`
	IndexEstimate int `mapstructure:"index_estimate"`
}

// RenderConfig selects the page renderer. PDF export starts Chrome even when
// Headless is off.
type RenderConfig struct {
	Headless    bool          `mapstructure:"headless"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
}

// ExportConfig controls where artifacts go and how they are named.
type ExportConfig struct {
	// Dir is the local artifact root, used when GCSBucket is empty.
	Dir           string     `mapstructure:"dir"`
	GCSBucket     string     `mapstructure:"gcs_bucket"`
	Prefix        string     `mapstructure:"prefix"`
	NamePrefix    string     `mapstructure:"name_prefix"`
	DefaultFormat job.Format `mapstructure:"default_format"`
	IncludeTOC    bool       `mapstructure:"include_toc"`
	IncludeCover  bool       `mapstructure:"include_cover"`
}

// DBConfig enables the Postgres job store when DSN is set.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig enables completion notifications when TopicName is set and
// a shared job queue when JobTopic is set.
type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	TopicName       string `mapstructure:"topic_name"`
	JobTopic        string `mapstructure:"job_topic"`
	JobSubscription string `mapstructure:"job_subscription"`
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

// Every key needs a default so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("crawler.user_agent", "sitesnap/1.0 (+https://github.com/JakeFAU/sitesnap)")
	v.SetDefault("crawler.request_timeout", crawler.RequestTimeout)
	v.SetDefault("crawler.job_timeout", "1h")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.sitemap_record_failures", false)
	defaults := crawler.DefaultCrawlConfig()
	v.SetDefault("crawler.defaults.max_urls", defaults.MaxURLs)
	v.SetDefault("crawler.defaults.max_depth", defaults.MaxDepth)
	v.SetDefault("crawler.defaults.include_images", defaults.IncludeImages)
	v.SetDefault("crawler.defaults.respect_canonical", defaults.RespectCanonical)
	v.SetDefault("crawler.defaults.exclude_patterns", []string{})
	v.SetDefault("crawler.defaults.request_delay", defaults.RequestDelay)

	v.SetDefault("detector.probe_timeout", "30s")

	v.SetDefault("sitemap.max_depth", 3)
	v.SetDefault("sitemap.max_children", 10)
	v.SetDefault("sitemap.index_estimate", 50)

	v.SetDefault("render.headless", true)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout", "45s")

	v.SetDefault("export.dir", "data/snapshots")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.prefix", "jobs")
	v.SetDefault("export.name_prefix", "snapshot")
	v.SetDefault("export.default_format", string(job.FormatPDF))
	v.SetDefault("export.include_toc", true)
	v.SetDefault("export.include_cover", true)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "snapshot_jobs")
	v.SetDefault("db.max_conns", 4)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("pubsub.job_topic", "")
	v.SetDefault("pubsub.job_subscription", "")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_size", 64)
	v.SetDefault("progress.flush_interval", "250ms")
	v.SetDefault("progress.sink_timeout", "5s")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("tracing.service_name", telemetry.DefaultServiceName)
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch {
	case c.Server.Port <= 0:
		return errors.New("server.port must be > 0")
	case c.Crawler.Concurrency <= 0:
		return errors.New("crawler.concurrency must be > 0")
	case c.Crawler.QueueDepth <= 0:
		return errors.New("crawler.queue_depth must be > 0")
	case c.Crawler.JobTimeout <= 0:
		return errors.New("crawler.job_timeout must be > 0")
	case c.Render.MaxParallel <= 0:
		return errors.New("render.max_parallel must be > 0")
	case !c.Export.DefaultFormat.Valid():
		return fmt.Errorf("export.default_format %q is not one of pdf, markdown, html", c.Export.DefaultFormat)
	case c.Export.GCSBucket == "" && strings.TrimSpace(c.Export.Dir) == "":
		return errors.New("export.dir or export.gcs_bucket must be set")
	case (c.PubSub.TopicName != "" || c.PubSub.JobTopic != "") && c.PubSub.ProjectID == "":
		return errors.New("pubsub.project_id must be set when a pubsub topic is set")
	case c.PubSub.JobTopic != "" && c.PubSub.JobSubscription == "":
		return errors.New("pubsub.job_subscription must be set when pubsub.job_topic is set")
	case c.PubSub.JobTopic != "" && c.DB.DSN == "":
		return errors.New("pubsub.job_topic requires db.dsn so every replica sees the same jobs")
	case c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1:
		return errors.New("tracing.sample_ratio must be between 0 and 1")
	}
	if err := c.Crawler.Defaults.Validate(); err != nil {
		return fmt.Errorf("crawler.defaults: %w", err)
	}
	return nil
}
