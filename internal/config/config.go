// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Store     StoreConfig     `mapstructure:"store"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Snapshots SnapshotConfig  `mapstructure:"snapshots"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StoreConfig selects the persistence provider.
type StoreConfig struct {
	// Provider is "postgres" or "memory" (development only).
	Provider string `mapstructure:"provider"`
}

// EngineConfig governs the worker pool and control plane.
type EngineConfig struct {
	Workers          int `mapstructure:"workers"`
	QueueDepth       int `mapstructure:"queue_depth"`
	JobConcurrency   int `mapstructure:"job_concurrency"`
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds"`
}

// FetchConfig configures fetch timeout and retry behavior.
type FetchConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	RespectRobots    bool     `mapstructure:"respect_robots"`
	UserAgents       []string `mapstructure:"user_agents"`
}

// RateLimitConfig governs per-domain politeness budgets.
type RateLimitConfig struct {
	RequestsPerMinute   int `mapstructure:"requests_per_minute"`
	Burst               int `mapstructure:"burst"`
	WaitDeadlineSeconds int `mapstructure:"wait_deadline_seconds"`
}

// HeadlessConfig configures the optional browser-rendered fetch promotion.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// SnapshotConfig sets where raw fetched payloads are archived.
type SnapshotConfig struct {
	// Provider is "memory", "local", or "gcs".
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for lifecycle notifications and the publish
// hand-off.
type NotifyConfig struct {
	// Provider is "memory" or "pubsub".
	Provider     string `mapstructure:"provider"`
	ProjectID    string `mapstructure:"project_id"`
	EventTopic   string `mapstructure:"event_topic"`
	PublishTopic string `mapstructure:"publish_topic"`
}

// SchedulerConfig controls the schedule evaluation loop.
type SchedulerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	TickSeconds int  `mapstructure:"tick_seconds"`
}

// QualityConfig feeds the quality scorer.
type QualityConfig struct {
	TrustedDomains    []string `mapstructure:"trusted_domains"`
	MinDescriptionLen int      `mapstructure:"min_description_len"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("store.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.queue_depth", 64)
	v.SetDefault("engine.job_concurrency", 2)
	v.SetDefault("engine.heartbeat_seconds", 15)
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("ratelimit.requests_per_minute", 30)
	v.SetDefault("ratelimit.wait_deadline_seconds", 45)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("snapshots.provider", "memory")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("notify.provider", "memory")
	v.SetDefault("notify.event_topic", "scrape-events")
	v.SetDefault("notify.publish_topic", "published-jobs")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick_seconds", 15)
	v.SetDefault("quality.min_description_len", 140)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be > 0")
	}
	if c.Engine.QueueDepth <= 0 {
		return fmt.Errorf("engine.queue_depth must be > 0")
	}
	if c.Engine.JobConcurrency <= 0 {
		return fmt.Errorf("engine.job_concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit.requests_per_minute must be > 0")
	}
	if c.Store.Provider != "memory" && c.Store.Provider != "postgres" {
		return fmt.Errorf("store.provider must be memory or postgres")
	}
	if c.Store.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when store.provider is postgres")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Snapshots.Provider == "gcs" && c.Snapshots.GCSBucket == "" {
		return fmt.Errorf("snapshots.gcs_bucket must be set when snapshots.provider is gcs")
	}
	if c.Snapshots.Provider == "local" && c.Snapshots.LocalDir == "" {
		return fmt.Errorf("snapshots.local_dir must be set when snapshots.provider is local")
	}
	if c.Notify.Provider == "pubsub" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.provider is pubsub")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout returns the fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Fetch.BackoffMaxMs) * time.Millisecond
}

// RateLimitDeadline returns how long a worker may block on the limiter
// before the fetch attempt is abandoned.
func (c Config) RateLimitDeadline() time.Duration {
	return time.Duration(c.RateLimit.WaitDeadlineSeconds) * time.Second
}

// Heartbeat returns the control-plane heartbeat interval.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.Engine.HeartbeatSeconds) * time.Second
}

// SchedulerTick returns the schedule evaluation cadence.
func (c Config) SchedulerTick() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}
