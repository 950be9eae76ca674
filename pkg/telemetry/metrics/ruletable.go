package metrics

import "github.com/prometheus/client_golang/prometheus"

// RuleTableMetrics tracks the loaded rule table and reloads.
type RuleTableMetrics struct {
	reloadsTotal *prometheus.CounterVec
	version      prometheus.Gauge
	activeRules  prometheus.Gauge
}

// NewRuleTableMetrics creates and registers rule table metrics.
func NewRuleTableMetrics(namespace, subsystem string, registry prometheus.Registerer) *RuleTableMetrics {
	rm := &RuleTableMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rule_table_reloads_total",
				Help:      "Total number of rule table reload attempts by status",
			},
			[]string{"status"},
		),

		version: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rule_table_version",
				Help:      "Version of the active rule table",
			},
		),

		activeRules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rule_table_active_rules",
				Help:      "Number of active rules in the loaded table",
			},
		),
	}

	registry.MustRegister(rm.reloadsTotal, rm.version, rm.activeRules)
	return rm
}

// RecordReload counts a reload attempt.
func (rm *RuleTableMetrics) RecordReload(status string) {
	rm.reloadsTotal.WithLabelValues(status).Inc()
}

// SetTable publishes the version and size of the active table.
func (rm *RuleTableMetrics) SetTable(version uint64, activeRules int) {
	rm.version.Set(float64(version))
	rm.activeRules.Set(float64(activeRules))
}
