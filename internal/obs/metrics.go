package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the access-control counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	verdicts    *prometheus.CounterVec
	revocations *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	swept       prometheus.Counter
	auditDrops  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guard_verdicts_total",
				Help: "Access guard evaluations by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		revocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_revocations_total",
				Help: "Tokens added to the revocation blocklist.",
			},
			[]string{"kind"},
		),
		sweeps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_sweeps_total",
				Help: "Blocklist sweeps by result.",
			},
			[]string{"result"},
		),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blocklist_swept_entries_total",
			Help: "Expired blocklist entries removed by sweeps.",
		}),
		auditDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_denials_dropped_total",
			Help: "Denial audit events dropped because the write queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.verdicts, m.revocations, m.sweeps, m.swept, m.auditDrops)
	}
	return m
}

func (m *Metrics) ObserveVerdict(mode, outcome string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveRevocation(kind string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSweep(removed int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sweeps.WithLabelValues("error").Inc()
		return
	}
	m.sweeps.WithLabelValues("ok").Inc()
	m.swept.Add(float64(removed))
}

func (m *Metrics) ObserveAuditDrop() {
	if m == nil {
		return
	}
	m.auditDrops.Inc()
}

// Handler exposes the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
