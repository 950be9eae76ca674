package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/sentinel/pkg/telemetry/metrics"
)

var (
	// ErrBufferFull is returned by AsyncEmitter.Emit when the event was
	// dropped because the buffer is full.
	ErrBufferFull = errors.New("event buffer full")

	// ErrClosed is returned by AsyncEmitter.Emit after Close.
	ErrClosed = errors.New("emitter closed")
)

// AsyncConfig contains configuration for an AsyncEmitter.
type AsyncConfig struct {
	// Name labels the emitter in logs and metrics.
	// Default: "async"
	Name string

	// BufferSize is the capacity of the event queue.
	// Default: 1024
	BufferSize int

	// WriteTimeout bounds each call to the wrapped emitter.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

func (c *AsyncConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "async"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// AsyncEmitter decouples callers from a slow emitter. Emit never blocks:
// events are queued on a bounded buffer and written by one background
// worker. When the buffer is full the event is dropped and counted.
type AsyncEmitter struct {
	next    Emitter
	cfg     AsyncConfig
	queue   chan queuedEvent
	logger  *slog.Logger
	metrics *metrics.Collector

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// NewAsyncEmitter starts a worker writing to next. collector may be nil.
func NewAsyncEmitter(next Emitter, cfg AsyncConfig, logger *slog.Logger, collector *metrics.Collector) *AsyncEmitter {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	a := &AsyncEmitter{
		next:    next,
		cfg:     cfg,
		queue:   make(chan queuedEvent, cfg.BufferSize),
		logger:  logger.With("component", "events."+cfg.Name),
		metrics: collector,
	}

	a.wg.Add(1)
	go a.worker()

	return a
}

// Emit enqueues event without blocking. The context is detached from its
// cancellation so the write can outlive the caller's request.
func (a *AsyncEmitter) Emit(ctx context.Context, event Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		a.metrics.SetEventQueueDepth(a.cfg.Name, len(a.queue))
		return nil
	default:
		n := a.dropped.Add(1)
		a.metrics.RecordEventDropped(a.cfg.Name)
		a.logger.Warn("event buffer full, dropping event",
			"type", event.Type,
			"buffer_size", a.cfg.BufferSize,
			"dropped_total", n,
		)
		return ErrBufferFull
	}
}

// Dropped returns the number of events dropped so far.
func (a *AsyncEmitter) Dropped() int64 {
	return a.dropped.Load()
}

// Written returns the number of events the wrapped emitter accepted.
func (a *AsyncEmitter) Written() int64 {
	return a.written.Load()
}

// Failed returns the number of events the wrapped emitter rejected.
func (a *AsyncEmitter) Failed() int64 {
	return a.failed.Load()
}

// Close stops accepting events, drains the queue and closes the wrapped
// emitter. It returns ctx.Err() if draining does not finish in time.
func (a *AsyncEmitter) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.logger.Info("draining event buffer", "pending_count", len(a.queue))

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("drain %s emitter: %w", a.cfg.Name, ctx.Err())
	}

	a.logger.Info("event buffer drained",
		"written", a.written.Load(),
		"failed", a.failed.Load(),
		"dropped", a.dropped.Load(),
	)
	return Close(ctx, a.next)
}

func (a *AsyncEmitter) worker() {
	defer a.wg.Done()

	for q := range a.queue {
		a.write(q)
		a.metrics.SetEventQueueDepth(a.cfg.Name, len(a.queue))
	}
}

func (a *AsyncEmitter) write(q queuedEvent) {
	ctx, cancel := context.WithTimeout(q.ctx, a.cfg.WriteTimeout)
	defer cancel()

	err := a.safeEmit(ctx, q.event)
	if err != nil {
		a.failed.Add(1)
		a.metrics.RecordEvent(a.cfg.Name, "error")
		a.logger.Error("failed to emit event",
			"type", q.event.Type,
			"error", err,
		)
		return
	}

	a.written.Add(1)
	a.metrics.RecordEvent(a.cfg.Name, "success")
}

// safeEmit keeps a panicking sink from killing the worker.
func (a *AsyncEmitter) safeEmit(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("emitter panic: %v", r)
		}
	}()
	return a.next.Emit(ctx, event)
}
