// Package cache stores upstream API responses keyed by a deterministic
// fingerprint of the logical request, with per-entry expiry.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is the persisted form of a cached response. Expires is a unix
// timestamp in seconds.
type Entry struct {
	Data    json.RawMessage `json:"data"`
	Expires float64         `json:"expires"`
}

// NewEntry builds an entry that expires ttl after now.
func NewEntry(data json.RawMessage, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Data:    data,
		Expires: float64(now.Add(ttl).UnixNano()) / float64(time.Second),
	}
}

// ExpiresAt converts Expires back to a time.
func (e *Entry) ExpiresAt() time.Time {
	sec := int64(e.Expires)
	nsec := int64((e.Expires - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt())
}

// Reader looks up cached payloads.
type Reader interface {
	// Get returns the payload for key. Missing and expired entries are both
	// reported as absent; an expired entry is removed as a side effect.
	Get(ctx context.Context, key string) (json.RawMessage, bool)
}

// Writer stores and removes cached payloads. Both report success instead of
// returning an error; a failed write simply means "not cached".
type Writer interface {
	Set(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
}

// Cache combines both cache operations
type Cache interface {
	Reader
	Writer
}

// Sweeper removes expired entries in bulk.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
