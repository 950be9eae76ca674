package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EvaluationMetrics tracks guardrail evaluation outcomes.
//
// Metrics:
//   - <ns>_<sub>_evaluations_total: evaluations by final action and primary domain
//   - <ns>_<sub>_evaluation_duration_seconds: end-to-end evaluation latency
//   - <ns>_<sub>_domain_results_total: per-domain resolved actions
//   - <ns>_<sub>_rule_triggers_total: rules that matched, by rule and domain
//   - <ns>_<sub>_autonomy_denied_total: requested autonomous actions that were denied
type EvaluationMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	domainResults      *prometheus.CounterVec
	ruleTriggers       *prometheus.CounterVec
	autonomyDenied     prometheus.Counter
}

// NewEvaluationMetrics creates and registers evaluation metrics.
func NewEvaluationMetrics(namespace, subsystem string, buckets []float64, registry prometheus.Registerer) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of guardrail evaluations",
			},
			[]string{"final_action", "primary_domain"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of guardrail evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"final_action"},
		),

		domainResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "domain_results_total",
				Help:      "Total number of per-domain results by resolved action",
			},
			[]string{"domain", "action"},
		),

		ruleTriggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rule_triggers_total",
				Help:      "Total number of rule matches",
			},
			[]string{"rule_id", "domain"},
		),

		autonomyDenied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "autonomy_denied_total",
				Help:      "Total number of requested autonomous actions that were denied",
			},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
		em.domainResults,
		em.ruleTriggers,
		em.autonomyDenied,
	)

	return em
}

// RecordEvaluation records one completed evaluation.
func (em *EvaluationMetrics) RecordEvaluation(finalAction, primaryDomain string, duration time.Duration) {
	if primaryDomain == "" {
		primaryDomain = "none"
	}
	em.evaluationsTotal.WithLabelValues(finalAction, primaryDomain).Inc()
	em.evaluationDuration.WithLabelValues(finalAction).Observe(duration.Seconds())
}

// RecordDomainResult records the resolved action of one domain.
func (em *EvaluationMetrics) RecordDomainResult(domain, action string) {
	em.domainResults.WithLabelValues(domain, action).Inc()
}

// RecordRuleTrigger records a matched rule.
func (em *EvaluationMetrics) RecordRuleTrigger(ruleID, domain string) {
	em.ruleTriggers.WithLabelValues(ruleID, domain).Inc()
}

// RecordAutonomyDenied records a denied autonomous action.
func (em *EvaluationMetrics) RecordAutonomyDenied() {
	em.autonomyDenied.Inc()
}
