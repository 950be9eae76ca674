package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain evidence.
	// 0 or a negative value keeps evidence forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	MaxRecords int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: config.DefaultEvidenceRetentionDays,
		PruneSchedule: config.DefaultEvidenceRetentionSchedule,
	}
}

// FromConfig converts the file configuration into a pruner Config.
func FromConfig(cfg config.RetentionConfig) *Config {
	return &Config{
		RetentionDays: cfg.Days,
		PruneSchedule: cfg.PruneSchedule,
		MaxRecords:    cfg.MaxRecords,
	}
}

// Pruner enforces retention policies on evidence records.
type Pruner struct {
	storage   evidence.Storage
	config    *Config
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	scheduler *Scheduler
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithClock overrides the clock used to compute the age cutoff.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMetrics counts pruned records in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(p *Pruner) {
		p.metrics = collector
	}
}

// NewPruner creates a new retention pruner.
func NewPruner(storage evidence.Storage, config *Config, logger *slog.Logger, opts ...Option) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pruner := &Pruner{
		storage: storage,
		config:  config,
		logger:  logger.With("component", "evidence.retention"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(pruner)
	}

	pruner.scheduler = NewScheduler(pruner, logger)

	return pruner
}

// Prune deletes evidence records older than the retention period
// or exceeding the max record count.
//
// Pruning happens in two phases:
// 1. Age-based: Delete records evaluated before now minus RetentionDays
// 2. Count-based: If total records > MaxRecords, delete the oldest
//
// Returns the total number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by age failed: %w", err)
		}
		totalDeleted += deleted
		p.logger.Debug("pruned records by age",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by count failed: %w", err)
		}
		totalDeleted += deleted
		p.logger.Debug("pruned records by count",
			"deleted_count", deleted,
			"max_records", p.config.MaxRecords,
		)
	}

	p.metrics.RecordEvidencePruned(totalDeleted)

	if totalDeleted == 0 {
		p.logger.Debug("no records pruned",
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("evidence pruning completed",
			"total_deleted", totalDeleted,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}

	return totalDeleted, nil
}

// pruneByAge deletes records older than the retention period.
func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	// EndTime is inclusive; step back one nanosecond so a record exactly at
	// the cutoff survives.
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays).Add(-time.Nanosecond)

	p.logger.Debug("pruning by age",
		"cutoff_time", cutoff,
		"retention_days", p.config.RetentionDays,
	)

	deleted, err := p.storage.Delete(ctx, &evidence.Query{EndTime: &cutoff})
	if err != nil {
		return 0, evidence.NewRetentionError(p.config.RetentionDays, p.config.MaxRecords, err)
	}

	return deleted, nil
}

// pruneByCount deletes the oldest records if the total exceeds MaxRecords.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &evidence.Query{})
	if err != nil {
		return 0, evidence.NewRetentionError(p.config.RetentionDays, p.config.MaxRecords, err)
	}

	if count <= p.config.MaxRecords {
		p.logger.Debug("record count within limit",
			"current", count,
			"max", p.config.MaxRecords,
		)
		return 0, nil
	}

	toDelete := count - p.config.MaxRecords

	p.logger.Info("record count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"to_delete", toDelete,
	)

	oldest, err := p.storage.Query(ctx, &evidence.Query{
		Limit:     int(toDelete),
		SortBy:    "evaluated_at",
		SortOrder: "asc",
	})
	if err != nil {
		return 0, evidence.NewRetentionError(p.config.RetentionDays, p.config.MaxRecords, err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	// Records sharing the cutoff timestamp are deleted together.
	cutoff := oldest[len(oldest)-1].EvaluatedAt

	p.logger.Debug("calculated cutoff time for count-based pruning",
		"cutoff_time", cutoff,
		"records_to_delete", len(oldest),
	)

	deleted, err := p.storage.Delete(ctx, &evidence.Query{EndTime: &cutoff})
	if err != nil {
		return 0, evidence.NewRetentionError(p.config.RetentionDays, p.config.MaxRecords, err)
	}

	return deleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
