// Package storage provides storage backends for evidence records.
//
// Two backends implement evidence.Storage:
//
//   - SQLite: durable embedded storage for single-node deployments
//   - Memory: a map guarded by a mutex, for tests and ephemeral runs
//
// # SQLite Backend
//
// The SQLite backend runs on either database/sql driver:
//
//   - "sqlite3" is github.com/mattn/go-sqlite3 and needs cgo
//   - "sqlite" is modernc.org/sqlite, a pure Go build
//
// Timestamps and durations are stored as integer nanoseconds and slices as
// JSON text, so a record read back verifies against the hash it was sealed
// with. WAL mode and a busy timeout are enabled by default.
//
// # Basic Usage
//
//	store, err := storage.New(cfg.Evidence, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	records, err := store.Query(ctx, &evidence.Query{
//	    FinalAction: "block",
//	    Limit:       50,
//	})
//
// Both backends sort by evaluated_at descending unless the query asks for
// another order, breaking ties by record ID.
package storage
