// Package config provides centralized configuration for the flagward
// service. It uses envconfig for environment variable loading and
// validator for validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentProduction is the production environment identifier.
	EnvironmentProduction = "production"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Admin         AdminConfig         `envconfig:"ADMIN"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	Cache         CacheConfig         `envconfig:"CACHE"`
	Reconciler    ReconcilerConfig    `envconfig:"RECONCILER"`
	Observability ObservabilityConfig `envconfig:"OBS"`
}

// AppConfig contains core application settings. Environment doubles as the
// ambient environment selector: it is the default evaluation environment
// when a caller's context does not name one.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"flagward"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// CacheConfig tunes the in-memory flag cache.
type CacheConfig struct {
	// TTL bounds staleness between the store and evaluation callers.
	TTL time.Duration `envconfig:"TTL" default:"60s"`

	// Capacity is the hard cap on cached flags (OOM protection).
	Capacity int `envconfig:"CAPACITY" default:"10000" validate:"min=16"`
}

// ReconcilerConfig tunes the scheduled-state reconciler.
type ReconcilerConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Interval time.Duration `envconfig:"INTERVAL" default:"1h"`

	// LeaseKey and LeaseTTL configure the Redis leader lease that keeps
	// concurrent replicas from reconciling the same cycle.
	LeaseKey string        `envconfig:"LEASE_KEY" default:"flagward:reconciler:lease"`
	LeaseTTL time.Duration `envconfig:"LEASE_TTL" default:"5m"`
}

// ObservabilityConfig configures the dedicated health/metrics server.
type ObservabilityConfig struct {
	Port          string        `envconfig:"PORT" default:"9090"`
	MetricsPath   string        `envconfig:"METRICS_PATH" default:"/metrics"`
	LivenessPath  string        `envconfig:"LIVENESS_PATH" default:"/health/live"`
	ReadinessPath string        `envconfig:"READINESS_PATH" default:"/health/ready"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// Load reads configuration from environment variables with the FLAGWARD
// prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("FLAGWARD", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs validation on the loaded configuration.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := c.Admin.Validate(c.App.Environment); err != nil {
		return err
	}
	if err := c.Database.Validate(c.App.Environment); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if c.Reconciler.Enabled && c.Reconciler.Interval < time.Minute {
		return fmt.Errorf("reconciler interval must be at least 1m, got %s", c.Reconciler.Interval)
	}
	if err := validatePort(c.Observability.Port, "observability"); err != nil {
		return err
	}

	return nil
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("admin_port", c.Admin.Port),
		slog.String("obs_port", c.Observability.Port),
		slog.Duration("cache_ttl", c.Cache.TTL),
		slog.Bool("reconciler_enabled", c.Reconciler.Enabled),
		slog.Duration("reconciler_interval", c.Reconciler.Interval),
		slog.Bool("db_configured", c.Database.IsConfigured()),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
	)
}

// Shared validation helpers.

// validatePort checks if port is valid (1-65535).
func validatePort(port, context string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", context)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", context, err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", context, portNum)
	}
	return nil
}

// validateHost checks if host is not empty and contains no whitespace.
func validateHost(host, context string) error {
	if host == "" {
		return fmt.Errorf("%s host cannot be empty", context)
	}
	if strings.TrimSpace(host) != host {
		return fmt.Errorf("%s host cannot contain whitespace", context)
	}
	return nil
}

// parseAndValidateURL parses a URL and enforces an allowed scheme list.
func parseAndValidateURL(rawURL string, allowedSchemes []string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if !slices.Contains(allowedSchemes, parsed.Scheme) {
		return nil, fmt.Errorf("invalid scheme '%s', must be one of: %v", parsed.Scheme, allowedSchemes)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("host is required in URL")
	}

	return parsed, nil
}
