// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/job-scraper/internal/extract"
)

// EnvPrefix prefixes every environment override, e.g. JOBSCRAPER_SERVER_PORT.
const EnvPrefix = "JOBSCRAPER"

// Render modes.
const (
	RenderHeadless = "headless"
	RenderStatic   = "static"
	RenderAuto     = "auto"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Scraper    ScraperConfig     `mapstructure:"scraper"`
	Browser    BrowserConfig     `mapstructure:"browser"`
	Static     StaticConfig      `mapstructure:"static"`
	Detector   DetectorConfig    `mapstructure:"detector"`
	Politeness PolitenessConfig  `mapstructure:"politeness"`
	Selectors  extract.Selectors `mapstructure:"selectors"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Snapshots  SnapshotConfig    `mapstructure:"snapshots"`
	PubSub     PubSubConfig      `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	MaxBatchSize          int `mapstructure:"max_batch_size"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs retries, batching and how pages are rendered.
type ScraperConfig struct {
	RenderMode          string `mapstructure:"render_mode"`
	Concurrency         int    `mapstructure:"concurrency"`
	RetryAttempts       int    `mapstructure:"retry_attempts"`
	RetryInitialDelayMs int    `mapstructure:"retry_initial_delay_ms"`
	// RetryMaxDelayMs caps the doubling backoff. Zero leaves it uncapped.
	RetryMaxDelayMs   int    `mapstructure:"retry_max_delay_ms"`
	URLTimeoutSeconds int    `mapstructure:"url_timeout_seconds"`
	FailurePolicy     string `mapstructure:"failure_policy"`
}

// RetryInitialDelay returns the first backoff delay.
func (c ScraperConfig) RetryInitialDelay() time.Duration {
	return time.Duration(c.RetryInitialDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap, zero when uncapped.
func (c ScraperConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// URLTimeout bounds one URL of a batch, retries included.
func (c ScraperConfig) URLTimeout() time.Duration {
	return time.Duration(c.URLTimeoutSeconds) * time.Second
}

// BrowserConfig configures the shared Chrome process and its pages.
type BrowserConfig struct {
	Enabled                   bool     `mapstructure:"enabled"`
	ExecPath                  string   `mapstructure:"exec_path"`
	Headless                  bool     `mapstructure:"headless"`
	NoSandbox                 bool     `mapstructure:"no_sandbox"`
	UserAgent                 string   `mapstructure:"user_agent"`
	WindowWidth               int      `mapstructure:"window_width"`
	WindowHeight              int      `mapstructure:"window_height"`
	ExtraFlags                []string `mapstructure:"extra_flags"`
	LaunchTimeoutSeconds      int      `mapstructure:"launch_timeout_seconds"`
	MaxParallel               int      `mapstructure:"max_parallel"`
	NavTimeoutSeconds         int      `mapstructure:"nav_timeout_seconds"`
	NetworkIdleTimeoutSeconds int      `mapstructure:"network_idle_timeout_seconds"`
	SettleDelayMs             int      `mapstructure:"settle_delay_ms"`
	RespectRobots             bool     `mapstructure:"respect_robots"`
}

// LaunchTimeout bounds browser start-up.
func (c BrowserConfig) LaunchTimeout() time.Duration {
	return time.Duration(c.LaunchTimeoutSeconds) * time.Second
}

// NavTimeout bounds one page render.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// NetworkIdleTimeout bounds the wait for network quiescence.
func (c BrowserConfig) NetworkIdleTimeout() time.Duration {
	return time.Duration(c.NetworkIdleTimeoutSeconds) * time.Second
}

// SettleDelay is the fixed wait after network idle.
func (c BrowserConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// StaticConfig configures the colly fetcher used by the static and auto modes.
type StaticConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout bounds one static fetch.
func (c StaticConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DetectorConfig tunes when auto mode promotes a probe to the browser.
type DetectorConfig struct {
	BodyThreshold int `mapstructure:"body_threshold"`
	MinTextLength int `mapstructure:"min_text_length"`
}

// PolitenessConfig limits requests per host across all renderers.
type PolitenessConfig struct {
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// StorageConfig selects where scraped jobs are persisted.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SnapshotConfig controls the rendered-HTML archive.
type SnapshotConfig struct {
	Backend     string `mapstructure:"backend"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for "job scraped" notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
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
	cfg.Selectors = cfg.Selectors.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("server.max_batch_size", 25)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")

	v.SetDefault("scraper.render_mode", RenderHeadless)
	v.SetDefault("scraper.concurrency", 3)
	v.SetDefault("scraper.retry_attempts", 3)
	v.SetDefault("scraper.retry_initial_delay_ms", 2000)
	v.SetDefault("scraper.retry_max_delay_ms", 0)
	v.SetDefault("scraper.url_timeout_seconds", 180)
	v.SetDefault("scraper.failure_policy", "placeholder")

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.extra_flags", []string{})
	v.SetDefault("browser.launch_timeout_seconds", 30)
	v.SetDefault("browser.max_parallel", 3)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.network_idle_timeout_seconds", 15)
	v.SetDefault("browser.settle_delay_ms", 3000)
	v.SetDefault("browser.respect_robots", false)

	v.SetDefault("static.user_agent", "")
	v.SetDefault("static.respect_robots", false)
	v.SetDefault("static.timeout_seconds", 20)

	v.SetDefault("detector.body_threshold", 2048)
	v.SetDefault("detector.min_text_length", 200)

	v.SetDefault("politeness.per_host_rps", 1.0)
	v.SetDefault("politeness.per_host_burst", 2)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "jobs")
	v.SetDefault("storage.postgres.max_conns", 4)

	v.SetDefault("snapshots.backend", "none")
	v.SetDefault("snapshots.local_dir", "data/snapshots")
	v.SetDefault("snapshots.gcs_bucket", "")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("snapshots.content_type", "text/html; charset=utf-8")

	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "job.scraped")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("server.max_batch_size must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.Scraper.RetryAttempts <= 0 {
		return fmt.Errorf("scraper.retry_attempts must be > 0")
	}
	if c.Scraper.RetryInitialDelayMs < 0 || c.Scraper.RetryMaxDelayMs < 0 {
		return fmt.Errorf("scraper retry delays must be >= 0")
	}
	switch strings.ToLower(c.Scraper.FailurePolicy) {
	case "placeholder", "propagate":
	default:
		return fmt.Errorf("scraper.failure_policy must be placeholder or propagate, got %q", c.Scraper.FailurePolicy)
	}
	switch c.Scraper.RenderMode {
	case RenderHeadless:
		if !c.Browser.Enabled {
			return fmt.Errorf("browser.enabled must be true when scraper.render_mode is %q", RenderHeadless)
		}
	case RenderStatic, RenderAuto:
	default:
		return fmt.Errorf("scraper.render_mode must be one of headless, static, auto; got %q", c.Scraper.RenderMode)
	}
	if c.Browser.Enabled {
		if c.Browser.MaxParallel <= 0 {
			return fmt.Errorf("browser.max_parallel must be > 0 when the browser is enabled")
		}
		if c.Browser.NavTimeoutSeconds <= 0 {
			return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
		}
	}
	if c.Politeness.PerHostRPS < 0 {
		return fmt.Errorf("politeness.per_host_rps must be >= 0")
	}
	if err := c.Selectors.WithDefaults().Validate(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or postgres, got %q", c.Storage.Backend)
	}
	switch c.Snapshots.Backend {
	case "none", "memory":
	case "local":
		if c.Snapshots.LocalDir == "" {
			return fmt.Errorf("snapshots.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Snapshots.GCSBucket == "" {
			return fmt.Errorf("snapshots.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("snapshots.backend must be none, memory, local or gcs, got %q", c.Snapshots.Backend)
	}
	switch c.PubSub.Backend {
	case "none", "memory":
	case "gcp":
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic must be set for the gcp backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be none, memory or gcp, got %q", c.PubSub.Backend)
	}
	return nil
}

// RequestTimeout bounds one HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
