// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Database   DatabaseConfig   `yaml:"database"`
	Plans      []PlanConfig     `yaml:"plans"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig configures JWT verification on the metering middleware.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer,omitempty"`
}

// RateLimitConfig configures the per-identity admission limiter.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	Shards        int           `yaml:"shards"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// IngestConfig configures the asynchronous usage ingest pipeline.
type IngestConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	RateLimit      int           `yaml:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
	Cooldown       time.Duration `yaml:"cooldown"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// AggregatorConfig configures the monthly aggregation job.
type AggregatorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // only "sqlite" for now
	DSN    string `yaml:"dsn"`
}

// PlanConfig configures a subscription plan.
type PlanConfig struct {
	Name              string  `yaml:"name"`
	RequestsPerSecond int     `yaml:"requests_per_second"`
	MonthlyQuota      int64   `yaml:"monthly_quota"`
	PricePerCall      float64 `yaml:"price_per_call"`
	Currency          string  `yaml:"currency,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	METERD_DATABASE_DSN       - Database path (default: meterd.db)
//	METERD_SERVER_HOST        - Server host (default: 0.0.0.0)
//	METERD_SERVER_PORT        - Server port (default: 8080)
//	METERD_AUTH_JWT_SECRET    - HMAC secret for verifying bearer tokens (required)
//	METERD_RATELIMIT_ENABLED  - Enable rate limiting (default: true)
//	METERD_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	METERD_LOG_FORMAT         - Log format: json or console (default: json)
//	METERD_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("METERD_AUTH_JWT_SECRET") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set METERD_AUTH_JWT_SECRET")
}

// applyEnvOverrides applies METERD_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("METERD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("METERD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("METERD_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("METERD_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Auth configuration
	if v := os.Getenv("METERD_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("METERD_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}

	// Rate limit configuration
	if v := os.Getenv("METERD_RATELIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("METERD_RATELIMIT_IDLE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RateLimit.IdleTTL = d
		}
	}

	// Ingest configuration
	if v := os.Getenv("METERD_INGEST_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxConcurrent = n
		}
	}
	if v := os.Getenv("METERD_INGEST_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.RateLimit = n
		}
	}
	if v := os.Getenv("METERD_INGEST_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.Cooldown = d
		}
	}

	// Aggregator configuration
	if v := os.Getenv("METERD_AGGREGATOR_ENABLED"); v != "" {
		cfg.Aggregator.Enabled = parseBool(v)
	}

	// Database configuration
	if v := os.Getenv("METERD_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("METERD_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("METERD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METERD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("METERD_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("METERD_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.RateLimit.IdleTTL == 0 {
		cfg.RateLimit.IdleTTL = 2 * time.Second
	}
	if cfg.RateLimit.Shards == 0 {
		cfg.RateLimit.Shards = 32
	}
	if cfg.RateLimit.SweepInterval == 0 {
		cfg.RateLimit.SweepInterval = time.Second
	}

	if cfg.Ingest.MaxConcurrent == 0 {
		cfg.Ingest.MaxConcurrent = 50
	}
	if cfg.Ingest.RateLimit == 0 {
		cfg.Ingest.RateLimit = 1000
	}
	if cfg.Ingest.RateWindow == 0 {
		cfg.Ingest.RateWindow = time.Minute
	}
	if cfg.Ingest.Cooldown == 0 {
		cfg.Ingest.Cooldown = 30 * time.Second
	}
	if cfg.Ingest.PersistTimeout == 0 {
		cfg.Ingest.PersistTimeout = 30 * time.Second
	}
	if cfg.Ingest.ShutdownGrace == 0 {
		cfg.Ingest.ShutdownGrace = 10 * time.Second
	}

	if cfg.Aggregator.CheckInterval == 0 {
		cfg.Aggregator.CheckInterval = 24 * time.Hour
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "meterd.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Default free plan if none configured
	if len(cfg.Plans) == 0 {
		cfg.Plans = []PlanConfig{
			{
				Name:              "Free",
				RequestsPerSecond: 2,
				MonthlyQuota:      1000,
			},
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	if cfg.Ingest.MaxConcurrent < 0 {
		return fmt.Errorf("ingest.max_concurrent must be positive")
	}
	if cfg.Ingest.RateLimit < 0 {
		return fmt.Errorf("ingest.rate_limit must be positive")
	}

	seen := map[string]bool{}
	for i, plan := range cfg.Plans {
		if plan.Name == "" {
			return fmt.Errorf("plans[%d].name is required", i)
		}
		if seen[plan.Name] {
			return fmt.Errorf("plans[%d]: duplicate plan name %q", i, plan.Name)
		}
		seen[plan.Name] = true
		if plan.RequestsPerSecond < 0 {
			return fmt.Errorf("plans[%d].requests_per_second must not be negative", i)
		}
		if plan.PricePerCall < 0 {
			return fmt.Errorf("plans[%d].price_per_call must not be negative", i)
		}
	}

	return nil
}
