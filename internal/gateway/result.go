package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind classifies a failed call.
type Kind int

const (
	// ServiceUnavailable: the service is unknown or inactive.
	ServiceUnavailable Kind = iota + 1
	// CredentialInvalid: the stored secret is missing or cannot be decrypted.
	CredentialInvalid
	// Timeout: the upstream did not answer in time.
	Timeout
	// UpstreamFailure: any other dispatch failure, including exhausted retries.
	UpstreamFailure
)

func (k Kind) String() string {
	switch k {
	case ServiceUnavailable:
		return "service_unavailable"
	case CredentialInvalid:
		return "credential_invalid"
	case Timeout:
		return "timeout"
	case UpstreamFailure:
		return "upstream_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure half of a Result.
type Error struct {
	Kind    Kind
	Message string
	// UpstreamStatus is the HTTP status behind an UpstreamFailure, 0 when the
	// upstream never answered.
	UpstreamStatus int
}

func (e *Error) Error() string { return e.Message }

// Retryable reports whether repeating the call later could succeed. Client
// errors from the upstream, other than 429, will fail the same way again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case Timeout:
		return true
	case UpstreamFailure:
		s := e.UpstreamStatus
		return s < 400 || s >= 500 || s == http.StatusTooManyRequests
	default:
		return false
	}
}

// Result is what every call returns: either the upstream payload, verbatim,
// or an Error. It is never both.
type Result struct {
	Data     json.RawMessage
	Err      *Error
	Status   int
	CacheHit bool
}

// OK reports whether the call produced a payload.
func (r Result) OK() bool { return r.Err == nil }

// Decode unmarshals the payload into v.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	return json.Unmarshal(r.Data, v)
}

// MarshalJSON emits the payload unchanged, or {"error": "<message>"}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err.Message})
	}
	if len(r.Data) == 0 {
		return []byte("null"), nil
	}
	return r.Data, nil
}

func failure(kind Kind, format string, args ...any) Result {
	return Result{Err: &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}
