// Package telemetry groups the observability subpackages of the guardrail
// service.
//
//   - logging: slog setup and request-scoped context helpers
//   - metrics: Prometheus collectors for evaluations, reloads and evidence
//   - tracing: OpenTelemetry tracer provider and HTTP middleware
//   - events: outbound evaluation events (log, Pub/Sub, async fan-out)
//   - health: liveness, readiness and version endpoints
//
// The parent package holds no code. Wire the subpackages individually:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
package telemetry
