// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/apigateway/internal/app"
	"github.com/briangreenhill/apigateway/internal/config"
	appmw "github.com/briangreenhill/apigateway/internal/http/middleware"
	"github.com/briangreenhill/apigateway/internal/http/routes"
	"github.com/briangreenhill/apigateway/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", false)
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build gateway")
	}
	defer a.Close()

	// Queue for async calls
	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queue.Close()

	if len(cfg.APIKeys) == 0 {
		logger.Warn().Msg("API_KEYS is empty; every /api request will be rejected")
	}

	s := routes.New(routes.ServerOptions{
		Gateway: a.Gateway,
		Keys:    appmw.StaticKeys(cfg.APIKeys),
		Queue:   queue,
		Metrics: a.Registry,
		Log:     logger,
	})

	srv := newHTTPServer(cfg.Port, s.Router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("port", cfg.Port).Msg("starting api")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("serve")
	}
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
