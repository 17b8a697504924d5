// Package audit records one outcome per logical gateway call.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome is an append-only record of a gateway call.
type Outcome struct {
	ID        uuid.UUID `json:"id"`
	Service   string    `json:"service"`
	Caller    string    `json:"caller,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOutcome stamps a fresh ID and the current time.
func NewOutcome(service, caller, endpoint string, status int, latency time.Duration, cacheHit bool) Outcome {
	return Outcome{
		ID:        uuid.New(),
		Service:   service,
		Caller:    caller,
		Endpoint:  endpoint,
		Status:    status,
		LatencyMS: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
	}
}

// Sink persists outcomes. Record is best effort: implementations log their
// own failures and never surface them to the caller.
type Sink interface {
	Record(ctx context.Context, o Outcome)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, o Outcome)

func (f SinkFunc) Record(ctx context.Context, o Outcome) { f(ctx, o) }

// Multi fans an outcome out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Record(ctx context.Context, o Outcome) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, o)
		}
	}
}

// Nop discards outcomes.
var Nop Sink = SinkFunc(func(context.Context, Outcome) {})

// LogSink writes one structured log line per outcome.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (l *LogSink) Record(_ context.Context, o Outcome) {
	ev := l.log.Info()
	if o.Status >= 400 {
		ev = l.log.Warn()
	}
	ev.Str("id", o.ID.String()).
		Str("service", o.Service).
		Str("caller", o.Caller).
		Str("endpoint", o.Endpoint).
		Int("status", o.Status).
		Int64("latency_ms", o.LatencyMS).
		Bool("cache_hit", o.CacheHit).
		Msg("gateway call")
}

// MemorySink keeps outcomes in memory, mostly for tests.
type MemorySink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(_ context.Context, o Outcome) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, o)
	m.mu.Unlock()
}

// Outcomes returns a copy of everything recorded so far.
func (m *MemorySink) Outcomes() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outcome, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}

// Len reports how many outcomes were recorded.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outcomes)
}
