package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apigateway",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Total number of gateway calls by service and outcome",
		}, []string{"service", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "apigateway",
			Subsystem: "gateway",
			Name:      "upstream_duration_seconds",
			Help:      "Upstream dispatch duration including retries",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"service", "outcome"}),
	}
}

func (m *metrics) call(service, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(service, outcome).Inc()
}

func (m *metrics) upstream(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(service, outcome).Observe(d.Seconds())
}
