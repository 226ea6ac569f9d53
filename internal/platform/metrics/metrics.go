package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the signature engine.
type Metrics struct {
	SignaturesTotal    *prometheus.CounterVec
	RevisionsTotal     *prometheus.CounterVec
	CascadeClosedTotal prometheus.Counter
	ChildrenReleased   prometheus.Counter
	CompanyGateBlocked *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SignaturesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_signatures_total",
			Help: "Signature attempts by signature type and outcome",
		}, []string{"type", "outcome"}),
		RevisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_revisions_total",
			Help: "Revision request operations by outcome",
		}, []string{"outcome"}),
		CascadeClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bordereau_cascade_closed_total",
			Help: "Upstream documents closed by a final treatment cascade",
		}),
		ChildrenReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bordereau_children_released_total",
			Help: "Grouped children released after a parent refusal",
		}),
		CompanyGateBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bordereau_company_gate_blocked_total",
			Help: "Signatures blocked by the company status gate, by reason",
		}, []string{"reason"}),
	}
}
