package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/telemetry/events"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("evidence recorder closed")

// Config contains configuration for the evidence recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing one record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// StoreTraces keeps per-rule traces in stored records.
	// Default: false
	StoreTraces bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// FromConfig converts the file configuration into a recorder Config.
func FromConfig(cfg config.RecorderConfig) *Config {
	c := DefaultConfig()
	if cfg.AsyncBuffer > 0 {
		c.AsyncBuffer = cfg.AsyncBuffer
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	c.StoreTraces = cfg.StoreTraces
	return c
}

// Recorder turns evaluation events into sealed evidence records. It is an
// events.Emitter: Emit builds the record and enqueues it without blocking,
// and a background worker writes records to storage.
type Recorder struct {
	storage evidence.Storage
	config  *Config
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	recordChan chan *evidence.Record
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the clock used for RecordedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a recorder writing to storage and starts its worker.
// collector may be nil.
func New(storage evidence.Storage, config *Config, logger *slog.Logger, collector *metrics.Collector, opts ...Option) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		logger:     logger.With("component", "evidence.recorder"),
		metrics:    collector,
		now:        time.Now,
		recordChan: make(chan *evidence.Record, config.AsyncBuffer),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("evidence recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"store_traces", config.StoreTraces,
	)

	return r
}

// Emit implements events.Emitter. Events other than evaluations are
// ignored. When the buffer is full the record is dropped and an error is
// returned.
func (r *Recorder) Emit(ctx context.Context, event events.Event) error {
	if event.Type != events.TypeEvaluation || event.Payload.Evaluation == nil {
		return nil
	}

	record := r.buildRecord(event)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return evidence.NewRecorderError(record.ID, ErrClosed)
	}

	select {
	case r.recordChan <- record:
		r.logger.Debug("evidence record enqueued for writing",
			"record_id", record.ID,
			"evaluation_id", record.EvaluationID,
		)
		return nil
	default:
		r.metrics.RecordEvidenceWrite("dropped")
		r.logger.Error("evidence record channel full, dropping record",
			"record_id", record.ID,
			"evaluation_id", record.EvaluationID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return evidence.NewRecorderError(record.ID, events.ErrBufferFull)
	}
}

// Record builds, seals and stores the record for an evaluation event
// synchronously.
func (r *Recorder) Record(ctx context.Context, event events.Event) (*evidence.Record, error) {
	if event.Payload.Evaluation == nil {
		return nil, evidence.NewRecorderError("", fmt.Errorf("event %s carries no evaluation", event.Type))
	}
	record := r.buildRecord(event)
	if err := r.storage.Store(ctx, record); err != nil {
		r.metrics.RecordEvidenceWrite("error")
		return nil, evidence.NewRecorderError(record.ID, err)
	}
	r.metrics.RecordEvidenceWrite("success")
	return record, nil
}

// Pending returns the number of records waiting to be written.
func (r *Recorder) Pending() int {
	return len(r.recordChan)
}

// Close stops accepting records and waits for queued writes to finish. It
// returns ctx.Err() if draining does not finish in time.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.recordChan)
	r.mu.Unlock()

	r.logger.Info("shutting down evidence recorder", "pending_count", len(r.recordChan))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return evidence.NewRecorderError("", fmt.Errorf("drain evidence channel: %w", ctx.Err()))
	}

	r.logger.Info("evidence recorder shut down complete")
	return nil
}

// worker drains the record channel until it is closed.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for record := range r.recordChan {
		r.writeRecord(record)
	}
}

// writeRecord writes a single evidence record to storage.
func (r *Recorder) writeRecord(record *evidence.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	err := r.storage.Store(ctx, record)
	if err != nil {
		r.metrics.RecordEvidenceWrite("error")
		r.logger.Error("failed to store evidence record",
			"record_id", record.ID,
			"evaluation_id", record.EvaluationID,
			"error", err,
		)
		return
	}
	r.metrics.RecordEvidenceWrite("success")

	duration := time.Since(start)

	r.logger.Debug("evidence recorded",
		"record_id", record.ID,
		"evaluation_id", record.EvaluationID,
		"final_action", record.FinalAction,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow evidence write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

func (r *Recorder) buildRecord(event events.Event) *evidence.Record {
	record := evidence.NewRecord(event.Payload.Evaluation, event.Payload.AutonomyRequested, r.config.StoreTraces)
	record.ID = uuid.NewString()
	record.RecordedAt = r.now().UTC()
	record.Seal()
	return record
}
