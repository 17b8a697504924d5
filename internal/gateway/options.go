package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/briangreenhill/apigateway/cache"
	"github.com/briangreenhill/apigateway/internal/audit"
	"github.com/briangreenhill/apigateway/internal/providers"
)

// Option configures a Client.
type Option func(*Client)

// WithCache enables result caching. Without it every call dispatches.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithDispatcher replaces the default retrying dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(cl *Client) { cl.dispatcher = d }
}

// WithRegistry replaces the built-in provider table.
func WithRegistry(r *providers.Registry) Option {
	return func(cl *Client) { cl.registry = r }
}

// WithAuditSink sets where call outcomes are recorded.
func WithAuditSink(s audit.Sink) Option {
	return func(cl *Client) { cl.sink = s }
}

// WithLogger sets the parent logger; the client logs under component=gateway.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithDefaultTimeout sets the per-attempt timeout used when a call does not
// pass its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithAuditTimeout bounds each audit write. Zero leaves writes unbounded.
func WithAuditTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.auditTimeout = d }
}

// WithCallDeadline caps a whole call, retries and backoff included.
// Zero disables the cap.
func WithCallDeadline(d time.Duration) Option {
	return func(cl *Client) { cl.deadline = d }
}

// WithCoalescing makes concurrent cache misses for the same key share one
// upstream dispatch.
func WithCoalescing(on bool) Option {
	return func(cl *Client) { cl.coalesce = on }
}

// WithRateLimit throttles each service to its configured hourly budget.
func WithRateLimit(on bool) Option {
	return func(cl *Client) { cl.guards.rateLimit = on }
}

// WithCircuitBreaker guards each service with its own breaker built from st.
// Name and IsSuccessful are filled in per service.
func WithCircuitBreaker(st gobreaker.Settings) Option {
	return func(cl *Client) {
		cl.guards.breaker = true
		cl.guards.breakerSettings = st
	}
}

// WithMetrics registers upstream call collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cl *Client) { cl.metrics = newMetrics(reg) }
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	caller   string
	useCache bool
	timeout  time.Duration
}

// WithCaller attributes the call to an identity for auditing.
func WithCaller(id string) CallOption {
	return func(o *callOptions) { o.caller = id }
}

// WithoutCache skips the cache lookup. A successful result is still stored,
// so the call acts as a forced refresh.
func WithoutCache() CallOption {
	return func(o *callOptions) { o.useCache = false }
}

// WithTimeout overrides the per-attempt timeout for this call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
