// Package jobs runs gateway work in the background: periodic cache sweeps and
// queued gateway calls.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/apigateway/cache"
	"github.com/briangreenhill/apigateway/internal/gateway"
)

// Handlers processes gateway tasks.
type Handlers struct {
	Gateway gateway.Caller
	Sweeper cache.Sweeper
	Log     zerolog.Logger
}

// Register wires every handler into mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskCacheSweep, h.HandleSweep)
	mux.HandleFunc(TaskGatewayCall, h.HandleCall)
}

// HandleSweep deletes expired cache entries.
func (h *Handlers) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	if h.Sweeper == nil {
		h.Log.Debug().Msg("[sweep] no sweepable cache configured")
		return nil
	}
	start := time.Now()
	n, err := h.Sweeper.Sweep(ctx)
	if err != nil {
		h.Log.Error().Err(err).Int("deleted", n).Msg("[sweep] failed")
		return err
	}
	h.Log.Info().Int("deleted", n).Dur("duration", time.Since(start)).Msg("[sweep] done")
	return nil
}

// HandleCall runs a queued gateway call. Timeouts and upstream failures are
// returned so asynq retries them, except upstream 4xx answers other than 429,
// which are archived without retry. Unknown services and bad credentials
// will not improve on retry and are dropped.
func (h *Handlers) HandleCall(ctx context.Context, t *asynq.Task) error {
	var p CallPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.Log.Error().Err(err).Msg("[call] bad payload")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.Log.With().Str("id", p.ID).Str("service", p.Service).Str("path", p.Path).Logger()
	log.Info().Msg("[call] start")

	start := time.Now()
	res := h.Gateway.Call(ctx, p.Service, p.Path, p.Params, gateway.WithCaller(p.Caller))
	duration := time.Since(start)

	if res.OK() {
		log.Info().Bool("cache_hit", res.CacheHit).Dur("duration", duration).Msg("[call] done")
		return nil
	}

	switch {
	case res.Err.Retryable():
		log.Warn().Str("kind", res.Err.Kind.String()).Str("error", res.Err.Message).Dur("duration", duration).Msg("[call] retryable error")
		return res.Err
	case res.Err.Kind == gateway.UpstreamFailure:
		log.Warn().Int("upstream_status", res.Err.UpstreamStatus).Str("error", res.Err.Message).Msg("[call] upstream rejected request (archiving job)")
		return fmt.Errorf("%w: %s", asynq.SkipRetry, res.Err.Message)
	default:
		log.Warn().Str("kind", res.Err.Kind.String()).Str("error", res.Err.Message).Msg("[call] permanent error (dropping job)")
		return nil
	}
}
