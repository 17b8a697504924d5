package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// TimeoutError reports that an attempt did not complete within its deadline.
// Timeouts are never retried.
type TimeoutError struct {
	Attempt int
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream timed out on attempt %d", e.Attempt)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StatusError reports a non-success HTTP status. Exhausted is set when the
// status was retryable but every attempt failed.
type StatusError struct {
	StatusCode int
	Attempts   int
	Exhausted  bool
}

func (e *StatusError) Error() string {
	kind := "HTTP Error"
	switch {
	case e.StatusCode >= 500:
		kind = "Server Error"
	case e.StatusCode >= 400:
		kind = "Client Error"
	}
	msg := fmt.Sprintf("%d %s: %s", e.StatusCode, kind, http.StatusText(e.StatusCode))
	if e.Exhausted {
		return fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	return msg
}

// TransportError reports a failure below HTTP: DNS, connect, reset, TLS.
type TransportError struct {
	Err       error
	Attempts  int
	Exhausted bool
}

// Error omits the request URL, which may carry credentials.
func (e *TransportError) Error() string {
	inner := e.Err
	var ue *url.Error
	if errors.As(inner, &ue) {
		inner = ue.Err
	}
	if e.Exhausted {
		return fmt.Sprintf("transport error after %d attempts: %v", e.Attempts, inner)
	}
	return fmt.Sprintf("transport error: %v", inner)
}

func (e *TransportError) Unwrap() error { return e.Err }

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRetryableTransport reports whether a non-timeout transport failure is
// worth another attempt.
func isRetryableTransport(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
