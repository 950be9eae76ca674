// Package tracing provides OpenTelemetry tracing for guardrail evaluations.
//
// Spans are exported over OTLP gRPC. When telemetry.tracing.enabled is false
// a noop tracer is returned, so callers never need to branch on it:
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	engine.NewEngine(engCfg, source, logger, engine.WithTracer(tracer.Tracer()))
//
// Incoming W3C trace context is extracted by HTTPMiddleware, and the engine
// starts a "guardrail.evaluate" span per evaluation with child spans per
// domain. Decision attributes use the "sentinel.*" namespace; raw user text is
// never attached to a span.
package tracing
