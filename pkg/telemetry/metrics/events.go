package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventMetrics tracks outbound telemetry events and evidence writes.
//
// Metrics:
//   - <ns>_<sub>_events_total: events handed to an emitter, by emitter and status
//   - <ns>_<sub>_events_dropped_total: events dropped because a buffer was full
//   - <ns>_<sub>_event_queue_depth: current buffered events per emitter
//   - <ns>_<sub>_evidence_records_total: evidence writes by status
//   - <ns>_<sub>_evidence_pruned_total: evidence records removed by retention
type EventMetrics struct {
	eventsTotal     *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	evidenceRecords *prometheus.CounterVec
	evidencePruned  prometheus.Counter
}

// NewEventMetrics creates and registers event metrics.
func NewEventMetrics(namespace, subsystem string, registry prometheus.Registerer) *EventMetrics {
	em := &EventMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_total",
				Help:      "Total number of telemetry events emitted",
			},
			[]string{"emitter", "status"},
		),

		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_dropped_total",
				Help:      "Total number of telemetry events dropped",
			},
			[]string{"emitter"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_queue_depth",
				Help:      "Number of events waiting in an emitter buffer",
			},
			[]string{"emitter"},
		),

		evidenceRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evidence_records_total",
				Help:      "Total number of evidence record writes by status",
			},
			[]string{"status"},
		),

		evidencePruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evidence_pruned_total",
				Help:      "Total number of evidence records removed by retention",
			},
		),
	}

	registry.MustRegister(
		em.eventsTotal,
		em.eventsDropped,
		em.queueDepth,
		em.evidenceRecords,
		em.evidencePruned,
	)

	return em
}
