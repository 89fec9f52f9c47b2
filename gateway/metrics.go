package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts gateway client activity.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Retries   prometheus.Counter
	Fallbacks prometheus.Counter
	SelfHeals prometheus.Counter
}

// NewMetrics registers the gateway metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kurukin_gateway_requests_total",
			Help: "Gateway client operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "kurukin_gateway_retries_total",
			Help: "HTTP retries against the gateway.",
		}),
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "kurukin_gateway_credential_fallbacks_total",
			Help: "One-shot credential fallbacks after an upstream 401.",
		}),
		SelfHeals: factory.NewCounter(prometheus.CounterOpts{
			Name: "kurukin_gateway_self_heals_total",
			Help: "Instance re-creations triggered mid QR poll.",
		}),
	}
}

func (m *Metrics) observe(op, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
}
