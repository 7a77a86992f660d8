// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	DB          DBConfig          `mapstructure:"db"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Producer    ProducerConfig    `mapstructure:"producer"`
	Consumer    ConsumerConfig    `mapstructure:"consumer"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles. The read-only status
// endpoints stay open; mutating endpoints require the key when enabled.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational state store.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MinConns       int32  `mapstructure:"min_conns"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// QueueConfig selects and configures the work queue backend.
type QueueConfig struct {
	// Backend is "memory" or "pubsub".
	Backend      string `mapstructure:"backend"`
	Depth        int    `mapstructure:"depth"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// StorageConfig sets paths for raw-page archival.
type StorageConfig struct {
	// Backend is "memory" or "gcs".
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// FetchConfig configures the plain HTTP fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the chromedp rendering fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// ProducerConfig governs the seed producer's re-queue windows.
type ProducerConfig struct {
	FailedRetryHours   int `mapstructure:"failed_retry_hours"`
	CompletedRetryDays int `mapstructure:"completed_retry_days"`
	TestGeoCodes       int `mapstructure:"test_geo_codes"`
}

// ConsumerConfig governs the batch consumers.
type ConsumerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetries  int `mapstructure:"max_retries"`
	BatchSize   int `mapstructure:"batch_size"`
}

// CoordinatorConfig governs the health-check loop.
type CoordinatorConfig struct {
	IntervalSeconds     int     `mapstructure:"interval_seconds"`
	SeedThreshold       int64   `mapstructure:"seed_threshold"`
	MaxQueueDepth       int64   `mapstructure:"max_queue_depth"`
	ErrorRateThreshold  float64 `mapstructure:"error_rate_threshold"`
	StaleWorkerMinutes  int     `mapstructure:"stale_worker_minutes"`
	StaleProcessMinutes int     `mapstructure:"stale_process_minutes"`
	ReapAfterMinutes    int     `mapstructure:"reap_after_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCRAPER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.migrations_path", "migrations")
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.depth", 256)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("fetch.user_agent", "leadscraper-bot/0.1")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("producer.failed_retry_hours", 24)
	v.SetDefault("producer.completed_retry_days", 7)
	v.SetDefault("producer.test_geo_codes", 5)
	v.SetDefault("consumer.concurrency", 4)
	v.SetDefault("consumer.max_retries", 3)
	v.SetDefault("consumer.batch_size", 10)
	v.SetDefault("coordinator.interval_seconds", 300)
	v.SetDefault("coordinator.seed_threshold", 50)
	v.SetDefault("coordinator.max_queue_depth", 10000)
	v.SetDefault("coordinator.error_rate_threshold", 0.1)
	v.SetDefault("coordinator.stale_worker_minutes", 5)
	v.SetDefault("coordinator.stale_process_minutes", 60)
	v.SetDefault("coordinator.reap_after_minutes", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Consumer.Concurrency <= 0 {
		return fmt.Errorf("consumer.concurrency must be > 0")
	}
	if c.Consumer.MaxRetries < 0 {
		return fmt.Errorf("consumer.max_retries must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Queue.Backend {
	case "memory":
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.Topic == "" {
			return fmt.Errorf("queue.project_id and queue.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("queue.backend must be memory or pubsub")
	}
	switch c.Storage.Backend {
	case "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or gcs")
	}
	if c.Coordinator.SeedThreshold < 0 {
		return fmt.Errorf("coordinator.seed_threshold must be >= 0")
	}
	return nil
}

// FetchTimeout converts the fetch timeout knob into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CoordinatorInterval converts the tick interval knob into a duration.
func (c Config) CoordinatorInterval() time.Duration {
	return time.Duration(c.Coordinator.IntervalSeconds) * time.Second
}
