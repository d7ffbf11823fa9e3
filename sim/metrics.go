package sim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what happened during one run.
type Metrics struct {
	EventsScheduled prometheus.Counter
	EventsExecuted  prometheus.Counter
	// events left in the queue past the timelimit
	EventsDiscarded prometheus.Counter
	EventErrors     *prometheus.CounterVec
	TimelineEntries prometheus.Counter
	SimTime         prometheus.Gauge
	Agents          prometheus.Gauge
}

// NewMetrics creates the run metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsScheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "streetsim",
			Name:      "events_scheduled_total",
			Help:      "Events pushed onto the event queue.",
		}),
		EventsExecuted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "streetsim",
			Name:      "events_executed_total",
			Help:      "Events drained and executed.",
		}),
		EventsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "streetsim",
			Name:      "events_discarded_total",
			Help:      "Events still queued when the timelimit was reached.",
		}),
		EventErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streetsim",
			Name:      "event_errors_total",
			Help:      "Events whose callback failed, by error kind.",
		}, []string{"kind"}),
		TimelineEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "streetsim",
			Name:      "timeline_entries_total",
			Help:      "Timeline entries recorded by agents.",
		}),
		SimTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "streetsim",
			Name:      "simulation_time",
			Help:      "Current simulation clock.",
		}),
		Agents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "streetsim",
			Name:      "agents",
			Help:      "Agents taking part in the run.",
		}),
	}
}
