// Package metrics provides Prometheus metrics for the guardrail service.
//
// # Metrics Categories
//
//   - Evaluation Metrics: evaluation count and latency, per-domain actions,
//     rule triggers, denied autonomy
//   - Rule Table Metrics: reload attempts, active version and rule count
//   - Event Metrics: emitted and dropped telemetry events, queue depth,
//     evidence writes and pruning
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordEvaluation(eval, input.Autonomy.Requested)
//	mux.Handle("/metrics", collector.Handler())
//
// Metric names are prefixed with the configured namespace and subsystem
// (default "sentinel_guardrail_"):
//
//	# HELP sentinel_guardrail_evaluations_total Total number of guardrail evaluations
//	# TYPE sentinel_guardrail_evaluations_total counter
//	sentinel_guardrail_evaluations_total{final_action="block",primary_domain="self_harm"} 3
//
// # Cardinality Management
//
// Rule ids and domain names come from the rule table. A CardinalityLimiter
// caps the number of distinct values; values past the cap are aggregated
// into "other". Every recording method is a no-op on a nil or disabled
// collector.
package metrics
