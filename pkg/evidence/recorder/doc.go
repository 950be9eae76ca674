// Package recorder writes guardrail evaluations to evidence storage.
//
// A Recorder is an events.Emitter. Wire it next to the other sinks and
// every evaluation event becomes an evidence record:
//
//	rec := recorder.New(store, recorder.FromConfig(cfg.Evidence.Recorder), logger, collector)
//	emitter := events.NewMultiEmitter(asyncSinks, rec)
//	defer rec.Close(ctx)
//
// Emit never blocks the evaluation path. The record is built and sealed
// immediately, then queued on a bounded channel; a single worker writes it
// with a per-record timeout. A full channel drops the record, counts it in
// the evidence_records_total metric with status "dropped", and returns an
// error that the engine logs.
//
// Each record carries a fresh UUID, the time it was built and a SHA-256
// hash over its contents. Per-rule traces are kept only when StoreTraces
// is set.
//
// Close stops accepting records and drains the channel.
package recorder
