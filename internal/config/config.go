// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// EnvPrefix namespaces environment overrides, e.g. JOBCRAWLER_RUN_QUOTA=50.
const EnvPrefix = "JOBCRAWLER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Run        RunConfig        `mapstructure:"run"`
	Search     SearchConfig     `mapstructure:"search"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RunConfig holds the query and the budgets of one crawl.
type RunConfig struct {
	Keyword            string        `mapstructure:"keyword"`
	Location           string        `mapstructure:"location"`
	DateFilter         string        `mapstructure:"date_filter"`
	Quota              int           `mapstructure:"quota"`
	Pages              int           `mapstructure:"pages"`
	MaxRetries         int           `mapstructure:"max_retries"`
	Concurrency        int           `mapstructure:"concurrency"`
	RequestDelay       time.Duration `mapstructure:"request_delay"`
	RequestDelayJitter time.Duration `mapstructure:"request_delay_jitter"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute  int           `mapstructure:"requests_per_minute"`
	FetchDetails       bool          `mapstructure:"fetch_details"`
	BackoffScale       float64       `mapstructure:"backoff_scale"`
	SeedURLs           []string      `mapstructure:"seed_urls"`
}

// SearchConfig describes the search endpoint.
type SearchConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	KeywordParam  string `mapstructure:"keyword_param"`
	LocationParam string `mapstructure:"location_param"`
	DateParam     string `mapstructure:"date_param"`
	DatePrefix    string `mapstructure:"date_prefix"`
	OffsetParam   string `mapstructure:"offset_param"`
	PageSize      int    `mapstructure:"page_size"`
	MaxOffset     int    `mapstructure:"max_offset"`
}

// IdentityConfig sizes the identity pool.
type IdentityConfig struct {
	PoolSize       int      `mapstructure:"pool_size"`
	MaxUses        int      `mapstructure:"max_uses"`
	MaxErrorScore  float64  `mapstructure:"max_error_score"`
	ReplenishLimit int      `mapstructure:"replenish_limit"`
	Proxies        []string `mapstructure:"proxies"`
}

// ExtractionConfig bounds the extraction heuristics.
type ExtractionConfig struct {
	MinTitleLength     int `mapstructure:"min_title_length"`
	MinCardText        int `mapstructure:"min_card_text"`
	MaxCardText        int `mapstructure:"max_card_text"`
	MaxFreeTextMatches int `mapstructure:"max_free_text_matches"`
	MaxEmbeddedDepth   int `mapstructure:"max_embedded_depth"`
}

// DetectorConfig adds challenge signals on top of the built-in ones.
type DetectorConfig struct {
	Markers   []string `mapstructure:"markers"`
	GatePaths []string `mapstructure:"gate_paths"`
	Selectors []string `mapstructure:"selectors"`
}

// SinkConfig selects where emitted records go. Every configured sink receives every record.
type SinkConfig struct {
	JSONL    JSONLConfig    `mapstructure:"jsonl"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// JSONLConfig configures the line-delimited file sink.
type JSONLConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig configures the Postgres sink.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	CreateTable     bool          `mapstructure:"create_table"`
}

// GCSConfig configures the Cloud Storage sink.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig configures the Pub/Sub sink.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// MetricsConfig controls the metrics listener; an empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// NewViper returns a Viper instance with defaults and environment overrides applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return FromViper(NewViper(), path)
}

// FromViper reads the optional config file into v and decodes the result.
// Flags bound to v before the call take precedence over the file.
func FromViper(v *viper.Viper, path string) (Config, error) {
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
	d := crawler.DefaultRunConfig()

	v.SetDefault("run.keyword", "")
	v.SetDefault("run.location", "")
	v.SetDefault("run.date_filter", string(d.DateFilter))
	v.SetDefault("run.quota", d.Quota)
	v.SetDefault("run.pages", d.PageCeiling)
	v.SetDefault("run.max_retries", d.MaxRetries)
	v.SetDefault("run.concurrency", d.Concurrency)
	v.SetDefault("run.request_delay", d.RequestDelay)
	v.SetDefault("run.request_delay_jitter", d.RequestDelayJitter)
	v.SetDefault("run.request_timeout", d.RequestTimeout)
	v.SetDefault("run.requests_per_minute", d.RequestsPerMinute)
	v.SetDefault("run.fetch_details", d.FetchDetails)
	v.SetDefault("run.backoff_scale", d.BackoffScale)
	v.SetDefault("run.seed_urls", []string{})

	v.SetDefault("search.base_url", d.Search.BaseURL)
	v.SetDefault("search.keyword_param", d.Search.KeywordParam)
	v.SetDefault("search.location_param", d.Search.LocationParam)
	v.SetDefault("search.date_param", d.Search.DateParam)
	v.SetDefault("search.date_prefix", d.Search.DatePrefix)
	v.SetDefault("search.offset_param", d.Search.OffsetParam)
	v.SetDefault("search.page_size", d.Search.PageSize)
	v.SetDefault("search.max_offset", d.Search.MaxOffset)

	v.SetDefault("identity.pool_size", d.Identity.PoolSize)
	v.SetDefault("identity.max_uses", d.Identity.MaxUses)
	v.SetDefault("identity.max_error_score", d.Identity.MaxErrorScore)
	v.SetDefault("identity.replenish_limit", d.Identity.ReplenishLimit)
	v.SetDefault("identity.proxies", []string{})

	v.SetDefault("extraction.min_title_length", d.Extraction.MinTitleLength)
	v.SetDefault("extraction.min_card_text", d.Extraction.MinCardText)
	v.SetDefault("extraction.max_card_text", d.Extraction.MaxCardText)
	v.SetDefault("extraction.max_free_text_matches", d.Extraction.MaxFreeTextMatches)
	v.SetDefault("extraction.max_embedded_depth", d.Extraction.MaxEmbeddedDepth)

	v.SetDefault("detector.markers", []string{})
	v.SetDefault("detector.gate_paths", []string{})
	v.SetDefault("detector.selectors", []string{})

	v.SetDefault("sink.jsonl.path", "data/jobs.jsonl")
	v.SetDefault("sink.postgres.dsn", "")
	v.SetDefault("sink.postgres.table", "job_postings")
	v.SetDefault("sink.postgres.max_conns", 4)
	v.SetDefault("sink.postgres.min_conns", 0)
	v.SetDefault("sink.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("sink.postgres.create_table", true)
	v.SetDefault("sink.gcs.bucket", "")
	v.SetDefault("sink.gcs.prefix", "jobs")
	v.SetDefault("sink.pubsub.project_id", "")
	v.SetDefault("sink.pubsub.topic_id", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	rc, err := c.RunConfig()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if !c.Sink.Enabled() {
		return crawler.ConfigError("at least one sink must be configured")
	}
	if c.Sink.PubSub.TopicID != "" && c.Sink.PubSub.ProjectID == "" {
		return crawler.ConfigError("sink.pubsub.project_id must be set when a topic is configured")
	}
	if c.Sink.Postgres.DSN != "" && c.Sink.Postgres.MaxConns < 0 {
		return crawler.ConfigError("sink.postgres.max_conns must be >= 0")
	}
	return nil
}

// Enabled reports whether any sink is configured.
func (s SinkConfig) Enabled() bool {
	return s.JSONL.Path != "" || s.Postgres.DSN != "" || s.GCS.Bucket != "" || s.PubSub.TopicID != ""
}

// RunConfig converts the loaded settings into the immutable run configuration.
func (c Config) RunConfig() (crawler.RunConfig, error) {
	filter, err := crawler.ParseDateFilter(c.Run.DateFilter)
	if err != nil {
		return crawler.RunConfig{}, fmt.Errorf("run.date_filter: %w", err)
	}
	return crawler.RunConfig{
		Keyword:            strings.TrimSpace(c.Run.Keyword),
		Location:           strings.TrimSpace(c.Run.Location),
		DateFilter:         filter,
		Quota:              c.Run.Quota,
		PageCeiling:        c.Run.Pages,
		MaxRetries:         c.Run.MaxRetries,
		Concurrency:        c.Run.Concurrency,
		RequestDelay:       c.Run.RequestDelay,
		RequestDelayJitter: c.Run.RequestDelayJitter,
		RequestTimeout:     c.Run.RequestTimeout,
		RequestsPerMinute:  c.Run.RequestsPerMinute,
		FetchDetails:       c.Run.FetchDetails,
		BackoffScale:       c.Run.BackoffScale,
		SeedURLs:           crawler.NormalizeList(c.Run.SeedURLs),
		Search: crawler.SearchSettings{
			BaseURL:       c.Search.BaseURL,
			KeywordParam:  c.Search.KeywordParam,
			LocationParam: c.Search.LocationParam,
			DateParam:     c.Search.DateParam,
			DatePrefix:    c.Search.DatePrefix,
			OffsetParam:   c.Search.OffsetParam,
			PageSize:      c.Search.PageSize,
			MaxOffset:     c.Search.MaxOffset,
		},
		Identity: crawler.IdentitySettings{
			PoolSize:       c.Identity.PoolSize,
			MaxUses:        c.Identity.MaxUses,
			MaxErrorScore:  c.Identity.MaxErrorScore,
			ReplenishLimit: c.Identity.ReplenishLimit,
			Proxies:        crawler.NormalizeList(c.Identity.Proxies),
		},
		Extraction: crawler.ExtractionSettings{
			MinTitleLength:     c.Extraction.MinTitleLength,
			MinCardText:        c.Extraction.MinCardText,
			MaxCardText:        c.Extraction.MaxCardText,
			MaxFreeTextMatches: c.Extraction.MaxFreeTextMatches,
			MaxEmbeddedDepth:   c.Extraction.MaxEmbeddedDepth,
		},
		Detector: crawler.DetectorSettings{
			Markers:   c.Detector.Markers,
			GatePaths: c.Detector.GatePaths,
			Selectors: c.Detector.Selectors,
		},
	}, nil
}
