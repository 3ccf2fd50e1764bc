package cmd

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
	"github.com/good-yellow-bee/blazealert/internal/storage"
)

// Environment variables holding secrets.
const (
	EnvTriggerSecret      = "BLAZEALERT_TRIGGER_SECRET"
	EnvSMTPPassword       = "BLAZEALERT_SMTP_PASSWORD"
	EnvClickHousePassword = "BLAZEALERT_CLICKHOUSE_PASSWORD"
)

// Dispatch modes.
const (
	DispatchDirect = "direct"
	DispatchHTTP   = "http"
)

// Config represents the blazealert configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Engine     EngineConfig     `yaml:"engine"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Receiver   ReceiverConfig   `yaml:"receiver"`
	Notifiers  NotifiersConfig  `yaml:"notifiers"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`

	TriggerSecret string `yaml:"-"` // from BLAZEALERT_TRIGGER_SECRET
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite file (default: ./data/blazealert.db)
}

// ClickHouseConfig contains span store settings.
type ClickHouseConfig struct {
	Addresses    []string      `yaml:"addresses"`     // host:port list
	Database     string        `yaml:"database"`      // default: blazealert
	Username     string        `yaml:"username"`      // default: default
	Password     string        `yaml:"-"`             // from BLAZEALERT_CLICKHOUSE_PASSWORD
	Table        string        `yaml:"table"`         // default: spans
	DialTimeout  time.Duration `yaml:"dial_timeout"`  // default: 5s
	QueryTimeout time.Duration `yaml:"query_timeout"` // default: 10s
	Compression  bool          `yaml:"compression"`   // LZ4

	// Migrate creates the spans table on startup.
	Migrate       bool `yaml:"migrate"`
	RetentionDays int  `yaml:"retention_days"` // spans TTL used by migrate, default 30
}

// AlertsConfig locates the alert definitions file.
type AlertsConfig struct {
	File  string `yaml:"file"`  // YAML definitions (optional)
	Watch bool   `yaml:"watch"` // reload on change
}

// EngineConfig contains evaluation and flush settings.
type EngineConfig struct {
	BatchSize        int                      `yaml:"batch_size"`        // items per flush (default: 50)
	HistoryRetention time.Duration            `yaml:"history_retention"` // 0 keeps history forever
	Severities       alerting.SeverityTimings `yaml:"severities"`        // overrides of the timing table
}

// DispatchConfig selects how queued notifications are delivered.
type DispatchConfig struct {
	Mode           string        `yaml:"mode"`            // direct or http (default: direct)
	TriggerURL     string        `yaml:"trigger_url"`     // receiver endpoint when mode is http
	DashboardURL   string        `yaml:"dashboard_url"`   // linked from notifications
	MaxConcurrency int           `yaml:"max_concurrency"` // per-item channel fan-out (default: 8)
	Timeout        time.Duration `yaml:"timeout"`         // trigger request timeout (default: 30s)
}

// ReceiverConfig contains trigger endpoint settings.
type ReceiverConfig struct {
	Address string `yaml:"address"` // listen address (default: :8090)
}

// NotifiersConfig contains provider settings.
type NotifiersConfig struct {
	SMTP               notifier.SMTPConfig                          `yaml:"smtp"`
	HTTPTimeout        time.Duration                                `yaml:"http_timeout"` // default: 10s
	PagerDutyEventsURL string                                       `yaml:"pagerduty_events_url"`
	RateLimits         map[models.Provider]notifier.RateLimitConfig `yaml:"rate_limits"`
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Address  string `yaml:"address"` // default: :9464
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // json or console (default: json)
}

// LoadConfig loads configuration from a YAML file and the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvTriggerSecret); v != "" {
		c.TriggerSecret = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		c.Notifiers.SMTP.Password = v
	}
	if v := os.Getenv(EnvClickHousePassword); v != "" {
		c.ClickHouse.Password = v
	}
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "./data/blazealert.db"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "blazealert"
	}
	if c.ClickHouse.Username == "" {
		c.ClickHouse.Username = "default"
	}
	if c.Engine.BatchSize <= 0 {
		c.Engine.BatchSize = 50
	}
	c.Engine.Severities = c.Engine.Severities.Merge(alerting.DefaultSeverityTimings())
	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = DispatchDirect
	}
	if c.Dispatch.MaxConcurrency <= 0 {
		c.Dispatch.MaxConcurrency = 8
	}
	if c.Dispatch.Timeout <= 0 {
		c.Dispatch.Timeout = 30 * time.Second
	}
	if c.Receiver.Address == "" {
		c.Receiver.Address = ":8090"
	}
	if c.Notifiers.HTTPTimeout <= 0 {
		c.Notifiers.HTTPTimeout = 10 * time.Second
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9464"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Engine.Severities.Validate(); err != nil {
		return fmt.Errorf("engine.severities: %w", err)
	}
	if c.Engine.HistoryRetention < 0 {
		return fmt.Errorf("engine.history_retention must not be negative")
	}

	switch c.Dispatch.Mode {
	case DispatchDirect:
	case DispatchHTTP:
		if c.Dispatch.TriggerURL == "" {
			return fmt.Errorf("dispatch.trigger_url is required when dispatch.mode is http")
		}
		u, err := url.Parse(c.Dispatch.TriggerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("dispatch.trigger_url must be an http(s) URL")
		}
		if c.TriggerSecret == "" {
			return fmt.Errorf("%s is required when dispatch.mode is http", EnvTriggerSecret)
		}
	default:
		return fmt.Errorf("dispatch.mode must be %q or %q", DispatchDirect, DispatchHTTP)
	}

	if c.Notifiers.SMTP.Host != "" {
		if err := c.Notifiers.SMTP.Validate(); err != nil {
			return fmt.Errorf("notifiers.smtp: %w", err)
		}
	}
	for provider, rl := range c.Notifiers.RateLimits {
		if rl.PerMinute < 0 || rl.Burst < 0 {
			return fmt.Errorf("notifiers.rate_limits.%s: values must not be negative", provider)
		}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console")
	}
	return nil
}

// StorageClickHouse converts the section to the storage configuration.
func (c *ClickHouseConfig) StorageClickHouse() *storage.ClickHouseConfig {
	return &storage.ClickHouseConfig{
		Addresses:    c.Addresses,
		Database:     c.Database,
		Username:     c.Username,
		Password:     c.Password,
		Table:        c.Table,
		DialTimeout:  c.DialTimeout,
		QueryTimeout: c.QueryTimeout,
		Compression:  c.Compression,

		RetentionDays: c.RetentionDays,
	}
}

// NewLogger builds the process logger.
func (c *LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
