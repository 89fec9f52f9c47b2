package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts ledger activity.
type Metrics struct {
	CreditsApplied  prometheus.Counter
	Duplicates      prometheus.Counter
	BalancesExpired prometheus.Counter
}

// NewMetrics registers the ledger metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CreditsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "kurukin_ledger_credits_applied_total",
			Help: "Credit movements written to the ledger.",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "kurukin_ledger_duplicates_suppressed_total",
			Help: "Replayed billing references ignored by the dedupe marker.",
		}),
		BalancesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "kurukin_ledger_balances_expired_total",
			Help: "Balances zeroed by the grace expiry sweep.",
		}),
	}
}

func (m *Metrics) creditApplied() {
	if m != nil {
		m.CreditsApplied.Inc()
	}
}

func (m *Metrics) duplicateSuppressed() {
	if m != nil {
		m.Duplicates.Inc()
	}
}

func (m *Metrics) balanceExpired() {
	if m != nil {
		m.BalancesExpired.Inc()
	}
}
