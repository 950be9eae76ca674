// Package retention enforces the evidence retention policy.
//
// A Pruner deletes records in two phases:
//
//   - Age: records evaluated more than RetentionDays ago
//   - Count: the oldest records beyond MaxRecords
//
// RetentionDays of 0 or less keeps records forever; MaxRecords of 0 is
// unlimited. Records that share the count cutoff timestamp are deleted
// together, so the count can briefly fall below MaxRecords.
//
// # Basic Usage
//
//	pruner := retention.NewPruner(store, retention.FromConfig(cfg.Evidence.Retention), logger,
//	    retention.WithMetrics(collector),
//	)
//
//	// Start background pruning on the cron schedule
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// # Manual Pruning
//
//	deleted, err := pruner.Prune(ctx)
//
// The evidence prune command runs exactly this once.
//
// # Schedule
//
// PruneSchedule is a standard five-field cron expression:
//
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "0 0 * * 0"    - Weekly on Sunday at midnight
//
// An empty schedule disables the scheduler; Prune can still be called.
package retention
