// Package events forwards guardrail evaluations to telemetry sinks.
//
// Every evaluation produces one Event of TypeEvaluation whose status is the
// final action and whose payload carries the full evaluation plus the
// autonomy_requested and autonomy_denied flags. Emission is best effort:
// the engine logs and swallows emitter errors.
//
// Sinks:
//   - LogEmitter writes a structured log line per event
//   - PubSubEmitter publishes JSON messages to a Cloud Pub/Sub topic
//   - MultiEmitter fans out to several sinks
//   - AsyncEmitter queues events on a bounded buffer so Emit never blocks
//
// A typical wiring:
//
//	sink := events.NewMultiEmitter(events.NewLogEmitter(logger), pubsubEmitter)
//	emitter := events.NewAsyncEmitter(sink, events.AsyncConfig{BufferSize: 1024}, logger, collector)
//	defer emitter.Close(ctx)
package events
