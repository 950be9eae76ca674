package events

import (
	"context"
	"errors"
	"log/slog"
)

// Emitter forwards events to a telemetry sink. Implementations must be safe
// for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(context.Context, Event) error { return nil }

// LogEmitter writes events as structured log lines.
type LogEmitter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogEmitter creates a log emitter. A nil logger uses slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{
		logger: logger.With("component", "events.log"),
		level:  slog.LevelInfo,
	}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(ctx context.Context, event Event) error {
	attrs := []any{
		"type", event.Type,
		"status", event.Status,
	}
	if event.Message != "" {
		attrs = append(attrs, "message", event.Message)
	}
	if eval := event.Payload.Evaluation; eval != nil {
		attrs = append(attrs,
			"evaluation_id", eval.ID,
			"request_id", eval.RequestID,
			"primary_domain", eval.PrimaryDomain,
			"triggered_rules", eval.TriggeredRules(),
			"input_hash", eval.InputHash,
			"duration_us", eval.Duration.Microseconds(),
		)
	}
	attrs = append(attrs,
		"rule_version", event.Payload.RuleVersion,
		"autonomy_requested", event.Payload.AutonomyRequested,
		"autonomy_denied", event.Payload.AutonomyDenied,
	)

	e.logger.Log(ctx, e.level, "guardrail event", attrs...)
	return nil
}

// MultiEmitter fans events out to several emitters. Every emitter is called
// even if an earlier one fails; the failures are joined.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a fan-out emitter. Nil emitters are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit implements Emitter.
func (m *MultiEmitter) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every emitter that has a Close method.
func (m *MultiEmitter) Close(ctx context.Context) error {
	var errs []error
	for _, e := range m.emitters {
		if err := closeEmitter(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped emitters.
func (m *MultiEmitter) Len() int {
	return len(m.emitters)
}

// closeEmitter shuts down e if it supports it.
func closeEmitter(ctx context.Context, e Emitter) error {
	switch c := e.(type) {
	case interface{ Close(context.Context) error }:
		return c.Close(ctx)
	case interface{ Close() error }:
		return c.Close()
	}
	return nil
}

// Close shuts down e if it implements Close(ctx) or Close().
func Close(ctx context.Context, e Emitter) error {
	if e == nil {
		return nil
	}
	return closeEmitter(ctx, e)
}
