// Package app assembles the gateway from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/briangreenhill/apigateway/cache"
	"github.com/briangreenhill/apigateway/internal/audit"
	"github.com/briangreenhill/apigateway/internal/config"
	"github.com/briangreenhill/apigateway/internal/credentials"
	"github.com/briangreenhill/apigateway/internal/dispatch"
	"github.com/briangreenhill/apigateway/internal/gateway"
	"github.com/briangreenhill/apigateway/internal/providers"
	"github.com/briangreenhill/apigateway/internal/secret"
)

// App holds the long-lived components shared by a process.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Registry *prometheus.Registry

	Pool        *pgxpool.Pool // nil without DATABASE_URL
	Redis       *redis.Client // nil unless the redis cache backend is selected
	Cipher      *secret.Cipher
	Store       credentials.Store
	Provisioner credentials.Provisioner
	Cache       cache.Cache // nil when caching is disabled
	Audit       *audit.PostgresSink
	Gateway     *gateway.Client
}

// New connects to the configured backends and builds the gateway.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	c, err := secret.New(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
		Cipher:   c,
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sinks := []audit.Sink{audit.NewLogSink(log)}
	if cfg.HasDatabase() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.Pool = pool

		store := credentials.NewPostgresStore(pool, c)
		if err := store.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.Audit = audit.NewPostgresSink(pool, log)
		if err := a.Audit.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.Store, a.Provisioner = store, store
		sinks = append(sinks, a.Audit)
	} else {
		log.Warn().Msg("DATABASE_URL not set; using in-memory service store seeded from environment")
		store := credentials.NewMemoryStore(c)
		if _, err := Provision(ctx, store, os.Getenv, log); err != nil {
			return nil, err
		}
		a.Store, a.Provisioner = store, store
	}

	if err := a.buildCache(); err != nil {
		a.Close()
		return nil, err
	}

	opts := []gateway.Option{
		gateway.WithLogger(log),
		gateway.WithAuditSink(audit.Multi(sinks...)),
		gateway.WithDefaultTimeout(cfg.Gateway.Timeout),
		gateway.WithCallDeadline(cfg.Gateway.CallDeadline),
		gateway.WithCoalescing(cfg.Gateway.Coalesce),
		gateway.WithRateLimit(cfg.Gateway.RateLimit),
		gateway.WithMetrics(a.Registry),
		gateway.WithDispatcher(dispatch.New(
			dispatch.WithMaxAttempts(cfg.Gateway.MaxAttempts),
			dispatch.WithLogger(log),
		)),
	}
	if a.Cache != nil {
		opts = append(opts, gateway.WithCache(a.Cache))
	}
	if cfg.Gateway.CircuitBreaker {
		opts = append(opts, gateway.WithCircuitBreaker(gobreaker.Settings{
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}))
	}
	a.Gateway = gateway.New(a.Store, opts...)
	return a, nil
}

func (a *App) buildCache() error {
	cfg := a.Config
	metrics := cache.NewMetrics(a.Registry)
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil
	case config.CacheRedis:
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rc := cache.NewRedisCache(a.Redis, cfg.Cache.RedisPrefix, a.Log)
		a.Cache = cache.NewInstrumentedAdapter(rc, config.CacheRedis, metrics)
	default:
		fc, err := cache.NewFileCache(cfg.Cache.Dir, a.Log)
		if err != nil {
			return err
		}
		a.Cache = cache.NewInstrumentedAdapter(fc, config.CacheFile, metrics)
	}
	return nil
}

// Sweeper returns the cache as a Sweeper when it supports bulk expiry.
func (a *App) Sweeper() cache.Sweeper {
	if s, ok := a.Cache.(cache.Sweeper); ok {
		return s
	}
	return nil
}

// Close releases backend connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// Provision upserts every built-in service whose secret is present in the
// environment, read through getenv. It returns the names that changed.
func Provision(ctx context.Context, p credentials.Provisioner, getenv func(string) string, log zerolog.Logger) ([]string, error) {
	var changed []string
	for _, def := range providers.Definitions() {
		plaintext := getenv(def.SecretEnv)
		if plaintext == "" {
			log.Warn().Str("service", def.Name).Str("env", def.SecretEnv).Msg("secret not set; skipping")
			continue
		}
		ok, err := p.Upsert(ctx, credentials.ServiceConfig{
			Name:             def.Name,
			BaseURL:          def.BaseURL,
			Active:           true,
			RateLimitPerHour: def.RateLimitPerHour,
		}, plaintext)
		if err != nil {
			return changed, fmt.Errorf("provision %s: %w", def.Name, err)
		}
		if ok {
			changed = append(changed, def.Name)
			log.Info().Str("service", def.Name).Msg("service secret updated")
		} else {
			log.Info().Str("service", def.Name).Msg("service unchanged")
		}
	}
	return changed, nil
}
