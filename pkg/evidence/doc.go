// Package evidence records guardrail evaluations as immutable audit records.
//
// # Architecture
//
// The evidence system consists of three layers:
//
//  1. Recorder - receives evaluation events from the engine's emitter and
//     turns them into Records (package recorder)
//  2. Storage - persists records in SQLite or memory (package storage)
//  3. Retention - prunes records by age and count on a cron schedule
//     (package retention)
//
// Queries are validated and defaulted by package query before they reach a
// backend.
//
// # Records
//
// Each Record captures:
//   - The evaluation id and the request, session and tenant ids
//   - The final action, primary domain, detected domains and triggered rules
//   - The user message and alternatives shown to the user
//   - The input hash and rule table version, so the decision can be replayed
//   - Whether autonomy was requested and denied
//   - A SHA-256 Hash over the record's contents for tamper detection
//
// Raw user text is never part of an evaluation and so never reaches storage.
//
// # Recording Flow
//
//	Engine.Evaluate → events.Event (TypeEvaluation)
//	     ↓
//	recorder.Recorder.Emit (non-blocking enqueue)
//	     ↓
//	Build Record, Seal hash
//	     ↓
//	Storage.Store (SQLite, WAL mode)
//
// # Basic Usage
//
//	store, err := storage.New(cfg.Evidence, logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	rec := recorder.New(store, recorder.FromConfig(cfg.Evidence.Recorder), logger, collector)
//	defer rec.Close(ctx)
//
//	eng, err := engine.NewEngine(engineCfg, source, logger, engine.WithEmitter(rec))
package evidence
