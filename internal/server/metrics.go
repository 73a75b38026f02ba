package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a single obfuscation request.
const (
	outcomeShortCircuit = "short_circuit"
	outcomeCacheHit     = "cache_hit"
	outcomeSampled      = "sampled"
	outcomeError        = "error"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	obfuscations *prometheus.CounterVec
	sessions     prometheus.Gauge
}

// NewMetrics registers the service collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		obfuscations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silhouette",
			Subsystem: "obfuscator",
			Name:      "obfuscations_total",
			Help:      "Obfuscated counts served, by outcome.",
		}, []string{"outcome"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "silhouette",
			Subsystem: "obfuscator",
			Name:      "sessions",
			Help:      "Sessions with a live obfuscation cache on this node.",
		}),
	}
}

func (m *Metrics) observe(outcome string) {
	m.obfuscations.WithLabelValues(outcome).Inc()
}
