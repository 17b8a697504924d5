// Package dispatch executes outbound HTTP GET requests with bounded retries.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the total number of attempts per request.
	DefaultMaxAttempts = 3
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 15 * time.Second
	// UserAgent is sent on every upstream request.
	UserAgent = "API-Gateway/1.0"

	maxBodyBytes = 32 << 20
)

// RetryStatuses are the upstream statuses treated as transient.
var RetryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Request describes one logical upstream GET.
type Request struct {
	URL     string
	Params  map[string]string
	Headers map[string]string
	// Timeout bounds each attempt; zero uses DefaultTimeout.
	Timeout time.Duration
}

// Response is a successful upstream reply with the body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dispatcher sends requests and retries transient failures.
type Dispatcher struct {
	http        Doer
	maxAttempts int
	backoff     func(attempt int) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	log         zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(h Doer) Option {
	return func(d *Dispatcher) { d.http = h }
}

// WithMaxAttempts sets how many times a retryable request is tried. Values
// below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoff replaces the wait computed before retry number attempt+1.
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(d *Dispatcher) { d.backoff = f }
}

// WithSleep replaces the context-aware sleep; tests use it to avoid waiting.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = f }
}

// WithLogger sets the logger used for retry and failure lines.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New returns a Dispatcher backed by a pooled HTTP client shared by all calls.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		http:        NewHTTPClient(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     ExponentialBackoff,
		sleep:       sleepContext,
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// NewHTTPClient builds the process-wide client. Per-attempt deadlines come
// from the request context, so the client itself has no Timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// ExponentialBackoff waits 2^attempt + 1 seconds, attempt starting at zero.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt+1) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute performs req. It returns a *Response for 2xx replies, or one of
// *TimeoutError, *StatusError, *TransportError.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (*Response, error) {
	target, err := buildURL(req.URL, req.Params)
	if err != nil {
		return nil, &TransportError{Err: err, Attempts: 0}
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	host := hostOf(target)

	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		resp, err := d.attempt(ctx, target, req.Headers, timeout)
		if err != nil {
			if isTimeout(err) {
				return nil, &TimeoutError{Attempt: attempt + 1, Err: err}
			}
			if !isRetryableTransport(err) {
				return nil, &TransportError{Err: err, Attempts: attempt + 1}
			}
			lastErr = &TransportError{Err: err, Attempts: attempt + 1, Exhausted: true}
		} else if RetryStatuses[resp.StatusCode] {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Attempts: attempt + 1, Exhausted: true}
		} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Attempts: attempt + 1}
		} else {
			resp.Attempts = attempt + 1
			return resp, nil
		}

		if attempt == d.maxAttempts-1 {
			break
		}
		wait := d.backoff(attempt)
		d.log.Debug().
			Str("host", host).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Str("reason", lastErr.Error()).
			Msg("retrying upstream request")
		if err := d.sleep(ctx, wait); err != nil {
			if isTimeout(err) {
				return nil, &TimeoutError{Attempt: attempt + 1, Err: err}
			}
			return nil, &TransportError{Err: err, Attempts: attempt + 1}
		}
	}
	return nil, lastErr
}

func (d *Dispatcher) attempt(ctx context.Context, target string, headers map[string]string, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func buildURL(raw string, params map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("upstream url must be absolute")
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func hostOf(target string) string {
	if u, err := url.Parse(target); err == nil {
		return u.Host
	}
	return ""
}
