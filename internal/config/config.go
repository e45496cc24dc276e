// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables. Components take
// the values they need as constructor parameters; nothing reads the
// environment after startup.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis). Optional: without it the resolver goes straight to
	// the database and creation rate limiting is disabled.
	RedisURL          string `env:"REDIS_URL"`
	RedisPoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisMinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`

	// Base URL for short links (e.g., https://lnk.dn)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Resolution: bound on the link store lookup before the resolver
	// gives up and reports storage unavailable.
	LookupTimeout time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"2s"`

	// Safety policy
	AllowedSchemes     string `env:"ALLOWED_SCHEMES" envDefault:"http,https"`
	DenyPrivateTargets bool   `env:"DENY_PRIVATE_TARGETS" envDefault:"true"`
	// StrictSafety fails resolution closed for pending/suspicious links.
	// Default is fail-open with audit tagging: blocking every link that
	// has not cleared review yet punishes legitimate use.
	StrictSafety bool `env:"STRICT_SAFETY" envDefault:"false"`

	// Rate limiting
	RateCreatePerMin  int `env:"RATE_CREATE_PER_MIN" envDefault:"10"`
	RateRedirectRPS   int `env:"RATE_REDIRECT_RPS" envDefault:"100"`
	RateRedirectBurst int `env:"RATE_REDIRECT_BURST" envDefault:"20"`

	// Click recording
	ClickQueueSize     int           `env:"CLICK_QUEUE_SIZE" envDefault:"4096"`
	ClickBatchSize     int           `env:"CLICK_BATCH_SIZE" envDefault:"200"`
	ClickFlushInterval time.Duration `env:"CLICK_FLUSH_INTERVAL" envDefault:"1s"`
	// ClickHashKey keys the HMAC applied to IPs and user-agents before
	// storage. Rotating it severs old hashes from new ones.
	ClickHashKey string `env:"CLICK_HASH_KEY" envDefault:"rotate-me"`

	// Daily aggregation runs at this UTC time ("HH:MM") for the
	// previous, fully-closed day.
	AggregateAt string `env:"AGGREGATE_AT" envDefault:"00:10"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetAllowedSchemes parses the comma-separated scheme list.
func (c *Config) GetAllowedSchemes() []string {
	parts := strings.Split(c.AllowedSchemes, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
