package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for cache operations.
type Metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	writes *prometheus.CounterVec
}

// NewMetrics registers cache collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		hits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apigateway",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}, []string{"backend"}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apigateway",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}, []string{"backend"}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apigateway",
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Total number of cache writes by result",
		}, []string{"backend", "result"}),
	}
}

// InstrumentedAdapter adapts any Cache so that every operation is counted.
type InstrumentedAdapter struct {
	cache   Cache
	backend string
	m       *Metrics
}

// NewInstrumentedAdapter wraps c. backend is used as the metric label.
func NewInstrumentedAdapter(c Cache, backend string, m *Metrics) *InstrumentedAdapter {
	return &InstrumentedAdapter{cache: c, backend: backend, m: m}
}

// Get implements Reader
func (ia *InstrumentedAdapter) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	payload, ok := ia.cache.Get(ctx, key)
	if ok {
		ia.m.hits.WithLabelValues(ia.backend).Inc()
	} else {
		ia.m.misses.WithLabelValues(ia.backend).Inc()
	}
	return payload, ok
}

// Set implements Writer
func (ia *InstrumentedAdapter) Set(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) bool {
	ok := ia.cache.Set(ctx, key, payload, ttl)
	result := "ok"
	if !ok {
		result = "error"
	}
	ia.m.writes.WithLabelValues(ia.backend, result).Inc()
	return ok
}

// Delete implements Writer
func (ia *InstrumentedAdapter) Delete(ctx context.Context, key string) bool {
	return ia.cache.Delete(ctx, key)
}

// Sweep forwards to the wrapped cache when it supports sweeping.
func (ia *InstrumentedAdapter) Sweep(ctx context.Context) (int, error) {
	if s, ok := ia.cache.(Sweeper); ok {
		return s.Sweep(ctx)
	}
	return 0, nil
}
