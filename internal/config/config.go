// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config holds all application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	// SecretKey is the master secret that credential encryption keys are
	// derived from.
	SecretKey string `env:"SECRET_KEY"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY"`

	// APIKeys maps inbound API keys to caller identities, "key1:alice,key2:bob".
	APIKeys map[string]string `env:"API_KEYS"`

	Cache   CacheConfig   `envPrefix:"CACHE_"`
	Gateway GatewayConfig `envPrefix:"GATEWAY_"`
}

// CacheConfig selects and tunes the result cache
type CacheConfig struct {
	Backend       string `env:"BACKEND" envDefault:"file"`
	Dir           string `env:"DIR"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"apigw:cache:"`
	SweepSchedule string `env:"SWEEP_SCHEDULE" envDefault:"@every 10m"`
}

// GatewayConfig tunes outbound calls
type GatewayConfig struct {
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"15s"`
	CallDeadline   time.Duration `env:"CALL_DEADLINE" envDefault:"60s"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	Coalesce       bool          `env:"COALESCE"`
	RateLimit      bool          `env:"RATE_LIMIT"`
	CircuitBreaker bool          `env:"CIRCUIT_BREAKER"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// HasDatabase returns true if a Postgres DSN is configured
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY must be set"))
	}
	switch c.Cache.Backend {
	case CacheFile, CacheNone:
	case CacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR must be set for the redis cache backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be one of file, redis, none, got %q", c.Cache.Backend))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", c.Gateway.Timeout))
	}
	if c.Gateway.CallDeadline < 0 {
		errs = append(errs, fmt.Errorf("GATEWAY_CALL_DEADLINE must not be negative, got %s", c.Gateway.CallDeadline))
	}
	if c.Gateway.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("GATEWAY_MAX_ATTEMPTS must be at least 1, got %d", c.Gateway.MaxAttempts))
	}
	return errors.Join(errs...)
}
