package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunResult describes the outcome of one scheduled pruning cycle.
type RunResult struct {
	StartedAt time.Time
	Duration  time.Duration
	Deleted   int64
	Err       error
}

// Scheduler runs a Pruner on the cron expression in Config.PruneSchedule.
// Cycles never overlap: a cycle still running when the next one is due
// causes that tick to be skipped.
type Scheduler struct {
	pruner *Pruner
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
	last    *RunResult
}

// NewScheduler creates a scheduler for pruner. It does nothing until Start.
func NewScheduler(pruner *Pruner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "evidence.scheduler")

	cl := cronLogger{logger: logger}
	return &Scheduler{
		pruner: pruner,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules pruning with a standard five-field cron expression, for
// example "0 3 * * *" for daily at 03:00. An empty schedule is not an
// error; the scheduler just stays idle. Cancelling ctx stops the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.config.PruneSchedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	id, err := s.cron.AddFunc(schedule, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("schedule pruning: %w", err)
	}
	s.entry = id
	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", schedule,
		"retention_days", s.pruner.config.RetentionDays,
		"max_records", s.pruner.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	start := time.Now()
	deleted, err := s.pruner.Prune(ctx)
	res := &RunResult{StartedAt: start, Duration: time.Since(start), Deleted: deleted, Err: err}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err, "deleted_count", deleted)
		return
	}
	s.logger.Debug("scheduled pruning finished",
		"deleted_count", deleted,
		"duration_ms", res.Duration.Milliseconds(),
	)
}

// Stop removes the job and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cron.Remove(s.entry)
	s.running = false
	s.mu.Unlock()

	// Wait outside the lock: a finishing cycle records its result under mu.
	<-s.cron.Stop().Done()
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether a schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled cycle, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// LastRun returns the result of the most recent cycle, or nil if none ran.
func (s *Scheduler) LastRun() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
