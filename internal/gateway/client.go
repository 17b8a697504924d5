// Package gateway turns logical requests into authenticated, cached and
// retried calls to third-party REST APIs.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/apigateway/cache"
	"github.com/briangreenhill/apigateway/internal/audit"
	"github.com/briangreenhill/apigateway/internal/credentials"
	"github.com/briangreenhill/apigateway/internal/dispatch"
	"github.com/briangreenhill/apigateway/internal/providers"
)

const (
	// DefaultTimeout bounds one upstream attempt.
	DefaultTimeout = 15 * time.Second
	// DefaultCallDeadline bounds a whole call, retries included.
	DefaultCallDeadline = 60 * time.Second
	// DefaultAuditTimeout bounds one audit write.
	DefaultAuditTimeout = 5 * time.Second

	redacted = "[REDACTED]"
)

// Dispatcher executes one logical upstream request. *dispatch.Dispatcher
// satisfies it.
type Dispatcher interface {
	Execute(ctx context.Context, req dispatch.Request) (*dispatch.Response, error)
}

// Caller is the surface consumed by HTTP handlers and background jobs.
type Caller interface {
	Call(ctx context.Context, service, path string, params map[string]string, opts ...CallOption) Result
}

// Client orchestrates cache, credential store, dispatcher and audit sink.
// It is safe for concurrent use.
type Client struct {
	store      credentials.Store
	cache      cache.Cache
	dispatcher Dispatcher
	registry   *providers.Registry
	sink       audit.Sink
	log        zerolog.Logger
	metrics    *metrics
	now        func() time.Time

	timeout      time.Duration
	deadline     time.Duration
	auditTimeout time.Duration

	coalesce bool
	group    singleflight.Group

	guards guards
}

// New builds a Client over store. Caching stays off until WithCache is given.
func New(store credentials.Store, opts ...Option) *Client {
	c := &Client{
		store:    store,
		registry: providers.Setup(),
		sink:     audit.Nop,
		log:      zerolog.Nop(),
		now:      time.Now,
		timeout:      DefaultTimeout,
		deadline:     DefaultCallDeadline,
		auditTimeout: DefaultAuditTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = dispatch.New(dispatch.WithLogger(c.log))
	}
	c.log = c.log.With().Str("component", "gateway").Logger()
	return c
}

// outcome is the result of the dispatch branch before it is audited.
type outcome struct {
	res     Result
	latency time.Duration
	// audited is false for early exits, which are logged but not recorded.
	audited bool
}

// Call performs one logical request. It never panics and never returns a Go
// error: failures come back as Result.Err.
func (c *Client) Call(ctx context.Context, service, path string, params map[string]string, opts ...CallOption) Result {
	co := callOptions{useCache: true, timeout: c.timeout}
	for _, o := range opts {
		o(&co)
	}
	if c.cache == nil {
		co.useCache = false
	}

	if c.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deadline)
		defer cancel()
	}

	key := cache.BuildKey(service, path, params)
	if co.useCache {
		if data, ok := c.cache.Get(ctx, key); ok {
			c.log.Debug().Str("service", service).Str("path", path).Msg("cache hit")
			c.record(ctx, audit.NewOutcome(service, co.caller, path, http.StatusOK, 0, true))
			c.metrics.call(service, "cache_hit")
			return Result{Data: data, Status: http.StatusOK, CacheHit: true}
		}
	}

	var out outcome
	if c.coalesce {
		out = c.fetchShared(ctx, service, path, params, key, co)
	} else {
		out = c.fetch(ctx, service, path, params, key, co)
	}

	if out.audited {
		c.record(ctx, audit.NewOutcome(service, co.caller, path, out.res.Status, out.latency, false))
	}
	return out.res
}

// fetchShared runs fetch once per key and timeout for all concurrent callers.
// The shared fetch is detached from any single caller's context and bounded
// by the call deadline instead; each caller still stops waiting when its own
// context ends.
func (c *Client) fetchShared(ctx context.Context, service, path string, params map[string]string, key string, co callOptions) outcome {
	start := c.now()
	ch := c.group.DoChan(key+"|"+co.timeout.String(), func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if c.deadline > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.deadline)
			defer cancel()
		}
		return c.fetch(fctx, service, path, params, key, co), nil
	})

	select {
	case r := <-ch:
		if r.Shared {
			c.log.Debug().Str("service", service).Str("path", path).Msg("coalesced upstream call")
		}
		return r.Val.(outcome)
	case <-ctx.Done():
		latency := c.now().Sub(start)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return c.timedOut(service, latency)
		}
		return c.upstreamFailure(service, ctx.Err().Error(), 0, latency)
	}
}

// record writes o without letting a slow sink hold back the caller for long.
func (c *Client) record(ctx context.Context, o audit.Outcome) {
	actx := context.WithoutCancel(ctx)
	if c.auditTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, c.auditTimeout)
		defer cancel()
	}
	c.sink.Record(actx, o)
}

func (c *Client) fetch(ctx context.Context, service, path string, params map[string]string, key string, co callOptions) outcome {
	svc, err := c.store.GetActive(ctx, service)
	if err != nil {
		ev := c.log.Warn()
		if !errors.Is(err, credentials.ErrNotFound) {
			ev = c.log.Error().Err(err)
		}
		ev.Str("service", service).Msg("service lookup failed")
		c.metrics.call(service, "unavailable")
		return outcome{res: failure(ServiceUnavailable, "service %s not found or inactive", service)}
	}

	secret, ok := c.store.Reveal(svc)
	if !ok || secret == "" {
		c.log.Warn().Str("service", service).Msg("credential missing or undecryptable")
		c.metrics.call(service, "credential_invalid")
		return outcome{res: failure(CredentialInvalid, "invalid or undecryptable key for %s", service)}
	}

	req := providers.Request{
		Path:    path,
		Params:  make(map[string]string, len(params)+1),
		Headers: make(map[string]string, 1),
	}
	for k, v := range params {
		req.Params[k] = v
	}
	c.registry.Inject(service, secret, &req)

	dreq := dispatch.Request{
		URL:     joinURL(svc.BaseURL, req.Path),
		Params:  req.Params,
		Headers: req.Headers,
		Timeout: co.timeout,
	}

	start := c.now()
	resp, err := c.execute(ctx, service, svc.RateLimitPerHour, dreq)
	latency := c.now().Sub(start)

	if err != nil {
		if isTimeout(err) {
			c.log.Warn().Str("service", service).Dur("latency", latency).Msg("upstream timeout")
			return c.timedOut(service, latency)
		}
		var status int
		var se *dispatch.StatusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		detail := redact(err.Error(), secret)
		c.log.Warn().Str("service", service).Str("error", detail).Dur("latency", latency).Msg("upstream request failed")
		return c.upstreamFailure(service, detail, status, latency)
	}

	if !json.Valid(resp.Body) {
		c.log.Warn().Str("service", service).Int("status", resp.StatusCode).Msg("upstream returned a non-JSON body")
		return c.upstreamFailure(service, "upstream returned a non-JSON body", resp.StatusCode, latency)
	}

	c.metrics.call(service, "ok")
	c.metrics.upstream(service, "ok", latency)
	// The lookup honours WithoutCache; the write does not, so a forced
	// refresh replaces the stored entry.
	if c.cache != nil {
		c.cache.Set(ctx, key, resp.Body, c.registry.TTL(service))
	}
	return outcome{
		res:     Result{Data: resp.Body, Status: resp.StatusCode},
		latency: latency,
		audited: true,
	}
}

func (c *Client) timedOut(service string, latency time.Duration) outcome {
	c.metrics.call(service, "timeout")
	c.metrics.upstream(service, "timeout", latency)
	res := failure(Timeout, "timeout for %s", service)
	res.Status = http.StatusRequestTimeout
	return outcome{res: res, latency: latency, audited: true}
}

// upstreamFailure builds the audited failure outcome. upstreamStatus is the
// HTTP status the upstream answered with, or 0 when there was none.
func (c *Client) upstreamFailure(service, detail string, upstreamStatus int, latency time.Duration) outcome {
	c.metrics.call(service, "failure")
	c.metrics.upstream(service, "failure", latency)
	res := failure(UpstreamFailure, "API request failed: %s", detail)
	res.Err.UpstreamStatus = upstreamStatus
	res.Status = http.StatusInternalServerError
	return outcome{res: res, latency: latency, audited: true}
}

// execute applies the optional rate limit and circuit breaker around dispatch.
func (c *Client) execute(ctx context.Context, service string, perHour int, req dispatch.Request) (*dispatch.Response, error) {
	if lim := c.guards.limiter(service, perHour); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errRateLimited
		}
	}

	cb := c.guards.circuit(service, c.log)
	if cb == nil {
		return c.dispatcher.Execute(ctx, req)
	}
	v, err := cb.Execute(func() (any, error) {
		return c.dispatcher.Execute(ctx, req)
	})
	if err != nil {
		if isBreakerOpen(err) {
			return nil, errCircuitOpen
		}
		return nil, err
	}
	return v.(*dispatch.Response), nil
}

var (
	errRateLimited = errors.New("rate limit exceeded")
	errCircuitOpen = errors.New("circuit breaker is open")
)

func isTimeout(err error) bool {
	var te *dispatch.TimeoutError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// redact removes every occurrence of secret from msg.
func redact(msg, secret string) string {
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, redacted)
}

func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
