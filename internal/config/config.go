// Package config loads and validates catalog service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/media-catalog-crawler/internal/crawler"
)

// Storage drivers accepted by db.driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Checks  ChecksConfig  `mapstructure:"checks"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs directory traversal.
type CrawlerConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	PageDelay     time.Duration `mapstructure:"page_delay"`
	ProgressEvery int           `mapstructure:"progress_every"`
	Extensions    []string      `mapstructure:"extensions"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBodySize int           `mapstructure:"max_body_size"`
}

// ChecksConfig controls availability checks and the job registry.
type ChecksConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	ProbeBatchSize  int           `mapstructure:"probe_batch_size"`
	ProbeBatchDelay time.Duration `mapstructure:"probe_batch_delay"`
	Retention       time.Duration `mapstructure:"retention"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	MaxFilesPerJob  int           `mapstructure:"max_files_per_job"`
}

// DBConfig selects and tunes the catalog store.
type DBConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
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
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("crawler.user_agent", "DefconFlix-Crawler/1.0 (La Villa Hacker)")
	v.SetDefault("crawler.page_delay", "500ms")
	v.SetDefault("crawler.progress_every", 10)
	v.SetDefault("crawler.extensions", crawler.Extensions)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_body_size", 10<<20)
	v.SetDefault("checks.batch_size", 5)
	v.SetDefault("checks.batch_delay", "3s")
	v.SetDefault("checks.probe_batch_size", 5)
	v.SetDefault("checks.probe_batch_delay", "1s")
	v.SetDefault("checks.retention", "1h")
	v.SetDefault("checks.stale_after", "24h")
	v.SetDefault("checks.max_files_per_job", 1000)
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.PageDelay < 0 {
		return fmt.Errorf("crawler.page_delay must be >= 0")
	}
	if c.Crawler.ProgressEvery <= 0 {
		return fmt.Errorf("crawler.progress_every must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Checks.BatchSize <= 0 || c.Checks.ProbeBatchSize <= 0 {
		return fmt.Errorf("checks.batch_size and checks.probe_batch_size must be > 0")
	}
	if c.Checks.BatchDelay < 0 || c.Checks.ProbeBatchDelay < 0 {
		return fmt.Errorf("checks.batch_delay and checks.probe_batch_delay must be >= 0")
	}
	if c.Checks.MaxFilesPerJob <= 0 {
		return fmt.Errorf("checks.max_files_per_job must be > 0")
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.DB.Driver)
	}
	return nil
}
