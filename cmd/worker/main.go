package main

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/apigateway/internal/app"
	"github.com/briangreenhill/apigateway/internal/config"
	"github.com/briangreenhill/apigateway/internal/jobs"
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

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build gateway")
	}
	defer a.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := jobs.RegisterPeriodic(scheduler, cfg.Cache.SweepSchedule); err != nil {
		logger.Fatal().Err(err).Msg("register periodic tasks")
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	srv := asynq.NewServer(redisOpt, serverConfig())
	mux := asynq.NewServeMux()
	h := &jobs.Handlers{
		Gateway: a.Gateway,
		Sweeper: a.Sweeper(),
		Log:     logger,
	}
	h.Register(mux)

	logger.Info().Str("sweep", cfg.Cache.SweepSchedule).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

func serverConfig() asynq.Config {
	return asynq.Config{
		Concurrency:    8,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueueCalls:       10, // higher priority
			jobs.QueueMaintenance: 1,
		},
	}
}
