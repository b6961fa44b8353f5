// Package config loads service configuration from a file and environment.
// Environment variables use the JOBSCOUT_ prefix with underscores, e.g.
// JOBSCOUT_DB_DSN overrides db.dsn.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ScrapeConfig tunes the fetch layer and the run coordinator.
type ScrapeConfig struct {
	MaxWorkers       int           `mapstructure:"max_workers"`
	SourceTimeout    time.Duration `mapstructure:"source_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	BrowserThreshold int           `mapstructure:"browser_threshold"`
	UserAgents       []string      `mapstructure:"user_agents"`
	Proxies          []string      `mapstructure:"proxies"`
	SnapshotPrefix   string        `mapstructure:"snapshot_prefix"`
}

// HeadlessConfig tunes the scripted browser pool.
type HeadlessConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ScrollCount       int           `mapstructure:"scroll_count"`
	ScrollDelay       time.Duration `mapstructure:"scroll_delay"`
	LoadMoreSelector  string        `mapstructure:"load_more_selector"`
	DomainQPS         float64       `mapstructure:"domain_qps"`
}

// DBConfig selects and tunes the persistence backend.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig tunes event publishing.
type PubSubConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProjectID   string `mapstructure:"project_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// StorageConfig tunes snapshot archival.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
}

// EnrichConfig points at the company-data API.
type EnrichConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SourcesConfig configures the built-in extractors.
type SourcesConfig struct {
	BoardAPI  BoardAPIConfig  `mapstructure:"boardapi"`
	HTMLBoard HTMLBoardConfig `mapstructure:"htmlboard"`
}

// BoardAPIConfig configures the structured API source.
type BoardAPIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	AppID   string `mapstructure:"app_id"`
	AppKey  string `mapstructure:"app_key"`
	Country string `mapstructure:"country"`
	Pages   int    `mapstructure:"pages"`
	PerPage int    `mapstructure:"per_page"`
}

// HTMLBoardConfig configures the rendered listing source.
type HTMLBoardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Pages   int    `mapstructure:"pages"`
}

// LoggingConfig tunes the zap logger.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load reads configuration from the optional file path, applying defaults
// and environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("JOBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
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
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)

	v.SetDefault("scrape.max_workers", 6)
	v.SetDefault("scrape.source_timeout", 3*time.Minute)
	v.SetDefault("scrape.max_attempts", 3)
	v.SetDefault("scrape.base_delay", 500*time.Millisecond)
	v.SetDefault("scrape.max_delay", 10*time.Second)
	v.SetDefault("scrape.request_timeout", 15*time.Second)
	v.SetDefault("scrape.browser_threshold", 2)
	v.SetDefault("scrape.snapshot_prefix", "failures")

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.navigation_timeout", 45*time.Second)
	v.SetDefault("headless.scroll_count", 4)
	v.SetDefault("headless.scroll_delay", 750*time.Millisecond)
	v.SetDefault("headless.domain_qps", 1.0)

	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 2)

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.topic_prefix", "jobscout-")

	v.SetDefault("storage.enabled", false)

	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.timeout", 10*time.Second)

	v.SetDefault("sources.boardapi.enabled", true)
	v.SetDefault("sources.boardapi.country", "us")
	v.SetDefault("sources.boardapi.pages", 2)
	v.SetDefault("sources.boardapi.per_page", 50)
	v.SetDefault("sources.htmlboard.enabled", true)
	v.SetDefault("sources.htmlboard.pages", 3)

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate rejects configurations that cannot start.
func (c Config) Validate() error {
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown db.provider %q", c.DB.Provider)
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub is enabled")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	if c.Enrich.Enabled && c.Enrich.BaseURL == "" {
		return fmt.Errorf("enrich.base_url is required when enrichment is enabled")
	}
	if c.Scrape.MaxWorkers <= 0 {
		return fmt.Errorf("scrape.max_workers must be positive")
	}
	if c.Scrape.MaxAttempts <= 0 {
		return fmt.Errorf("scrape.max_attempts must be positive")
	}
	return nil
}
