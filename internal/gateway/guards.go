package gateway

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/briangreenhill/apigateway/internal/dispatch"
)

// guards holds the optional per-service limiters and breakers.
type guards struct {
	rateLimit       bool
	breaker         bool
	breakerSettings gobreaker.Settings

	mu       sync.Mutex
	limiters map[string]*serviceLimiter
	breakers map[string]*gobreaker.CircuitBreaker
}

type serviceLimiter struct {
	perHour int
	lim     *rate.Limiter
}

// limiter returns the token bucket for service, rebuilding it when the
// configured hourly budget changes. A non-positive budget means unlimited.
func (g *guards) limiter(service string, perHour int) *rate.Limiter {
	if !g.rateLimit || perHour <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.limiters == nil {
		g.limiters = make(map[string]*serviceLimiter)
	}
	if sl, ok := g.limiters[service]; ok && sl.perHour == perHour {
		return sl.lim
	}
	lim := rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)
	g.limiters[service] = &serviceLimiter{perHour: perHour, lim: lim}
	return lim
}

// circuit returns the breaker for service, or nil when breakers are off.
func (g *guards) circuit(service string, log zerolog.Logger) *gobreaker.CircuitBreaker {
	if !g.breaker {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.breakers == nil {
		g.breakers = make(map[string]*gobreaker.CircuitBreaker)
	}
	if cb, ok := g.breakers[service]; ok {
		return cb
	}
	st := g.breakerSettings
	st.Name = service
	st.IsSuccessful = breakerSuccess
	onChange := st.OnStateChange
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("service", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	cb := gobreaker.NewCircuitBreaker(st)
	g.breakers[service] = cb
	return cb
}

// breakerSuccess counts client errors as healthy upstream behaviour; only
// transient statuses, timeouts and transport failures trip the breaker.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *dispatch.StatusError
	if errors.As(err, &se) {
		return se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	return false
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
