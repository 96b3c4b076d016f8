package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the roster core.
type Metrics struct {
	RosterLoads        *prometheus.CounterVec
	StaleLoadsDropped  prometheus.Counter
	Notifications      prometheus.Counter
	WriteIntents       *prometheus.CounterVec
	RosterSize         prometheus.Gauge
	RegistrationsTotal prometheus.Counter
}

// New creates and registers all metrics with reg. Pass a fresh registry in
// tests so that repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RosterLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regbot_roster_loads_total",
			Help: "Roster loads from the record store, by result",
		}, []string{"result"}),
		StaleLoadsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "regbot_roster_stale_loads_total",
			Help: "Completed loads discarded because a newer load was already applied",
		}),
		Notifications: f.NewCounter(prometheus.CounterOpts{
			Name: "regbot_store_notifications_total",
			Help: "Change notifications received from the record store",
		}),
		WriteIntents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regbot_write_intents_total",
			Help: "Write intents forwarded to the record store, by operation and result",
		}, []string{"op", "result"}),
		RosterSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "regbot_roster_size",
			Help: "Registrants in the current roster snapshot",
		}),
		RegistrationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "regbot_registrations_submitted_total",
			Help: "Wizard drafts submitted successfully",
		}),
	}
}

// Nop returns metrics bound to a throwaway registry.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveLoad(err error) {
	m.RosterLoads.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveWrite(op string, err error) {
	m.WriteIntents.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
