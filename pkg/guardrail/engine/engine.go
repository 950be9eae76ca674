package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
	"mercator-hq/sentinel/pkg/telemetry/events"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

// Reload statuses recorded in metrics.
const (
	reloadSuccess      = "success"
	reloadInvalid      = "invalid"
	reloadStaleVersion = "stale_version"
	reloadError        = "error"
)

// Engine evaluates guardrail inputs against the active rule table.
//
// Evaluate is safe for concurrent use. The rule table is held behind an
// atomic pointer and snapshotted once per evaluation, so a concurrent
// Reload never mixes two table versions in one evaluation.
type Engine struct {
	config *EngineConfig
	source ruletable.Source
	logger *slog.Logger

	table atomic.Pointer[ruletable.Table]

	// reloadMu serializes reloads so version checks are not racy.
	reloadMu sync.Mutex

	emitter events.Emitter
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// NewEngine creates an engine and loads the initial rule table from source.
// A table that fails to load or validate is fatal.
func NewEngine(cfg *EngineConfig, source ruletable.Source, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if source == nil {
		return nil, ErrNoSource
	}

	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		config:  cfg,
		source:  source,
		logger:  logger.With("component", "guardrail.engine"),
		emitter: events.NopEmitter{},
		tracer:  noop.NewTracerProvider().Tracer(tracing.InstrumentationName),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.Reload(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load initial rule table: %w", err)
	}

	return e, nil
}

// Table returns the active rule table. It must not be modified.
func (e *Engine) Table() *ruletable.Table {
	return e.table.Load()
}

// Reload loads a table from the source and publishes it. The new table's
// version must be greater than the active one. On any failure the active
// table is kept.
func (e *Engine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	current := e.table.Load()

	t, err := e.load(ctx, current)
	if err != nil {
		var version uint64
		if current != nil {
			version = current.Version
		}
		e.metrics.RecordReload(reloadStatus(err))
		e.emit(ctx, events.NewReloadEvent(version, err, e.now()))
		e.logger.Error("rule table reload failed", "error", err, "active_version", version)
		return err
	}

	e.table.Store(t)

	e.metrics.RecordReload(reloadSuccess)
	e.metrics.SetRuleTable(t.Version, t.ActiveRuleCount())
	e.emit(ctx, events.NewReloadEvent(t.Version, nil, e.now()))

	attrs := []any{
		"version", t.Version,
		"source", t.Source,
		"domains", len(t.Domains),
		"active_rules", t.ActiveRuleCount(),
	}
	if current != nil {
		attrs = append(attrs, "previous_version", current.Version)
	}
	e.logger.Info("rule table published", attrs...)

	return nil
}

func (e *Engine) load(ctx context.Context, current *ruletable.Table) (*ruletable.Table, error) {
	t, err := e.source.Load(ctx)
	if err != nil {
		return nil, &ReloadError{Cause: err}
	}

	if n := len(t.Domains); n > e.config.MaxDomains {
		return nil, &ReloadError{Source: t.Source, Cause: &LimitError{Kind: "domains", Count: n, Max: e.config.MaxDomains}}
	}
	if n := len(t.Rules); n > e.config.MaxRules {
		return nil, &ReloadError{Source: t.Source, Cause: &LimitError{Kind: "rules", Count: n, Max: e.config.MaxRules}}
	}

	if current != nil && t.Version <= current.Version {
		return nil, &ReloadError{Source: t.Source, Cause: &VersionError{Current: current.Version, Proposed: t.Version}}
	}

	t.Compile()

	if e.config.LintFields {
		for _, issue := range ruletable.Lint(t, ruletable.WithFieldCheck(ValidFieldPath)) {
			if issue.Severity == ruletable.SeverityWarning {
				e.logger.Warn("rule table warning", "issue", issue.String(), "version", t.Version)
			}
		}
	}

	return t, nil
}

func reloadStatus(err error) string {
	var versionErr *VersionError
	var limitErr *LimitError
	var validationErr *ruletable.ValidationError
	var parseErr *ruletable.ParseError

	switch {
	case errors.As(err, &versionErr):
		return reloadStaleVersion
	case errors.As(err, &limitErr), errors.As(err, &validationErr), errors.As(err, &parseErr):
		return reloadInvalid
	default:
		return reloadError
	}
}

// Evaluate decides what may happen with in. Its only error is a nil input;
// malformed input data degrades to conditions that do not match.
func (e *Engine) Evaluate(ctx context.Context, in *guardrail.Input) (*guardrail.Evaluation, error) {
	if in == nil {
		return nil, ErrNilInput
	}

	start := e.now()
	table := e.table.Load()

	ctx, span := e.tracer.Start(ctx, "guardrail.evaluate", trace.WithAttributes(tracing.InputAttributes(in)...))
	defer span.End()

	detected := DetectDomains(table, in)
	ec := NewEvalContext(in, detected)

	results := make([]guardrail.DomainResult, len(detected))
	for i, domain := range detected {
		results[i] = e.resolve(ctx, table, domain, in, ec)
	}

	flags := DeriveFlags(results, table.CrossCuttingDomain)
	reconciled := ec.WithFlags(flags)
	for i := range results {
		if results[i].Domain == table.CrossCuttingDomain {
			results[i] = e.resolve(ctx, table, results[i].Domain, in, reconciled)
			break
		}
	}

	final, primary := ResolveFinalAction(results)

	var primaryResult *guardrail.DomainResult
	for i := range results {
		if results[i].Domain == primary {
			primaryResult = &results[i]
			break
		}
	}
	message, alternatives := BuildExplanation(final, primaryResult, table)

	eval := &guardrail.Evaluation{
		ID:              e.newID(),
		RequestID:       in.RequestID,
		SessionID:       in.SessionID,
		TenantID:        in.TenantID,
		FinalAction:     final,
		PrimaryDomain:   primary,
		DetectedDomains: detected,
		Results:         results,
		CrossDomain:     flags,
		UserMessage:     message,
		Alternatives:    alternatives,
		InputHash:       HashInput(in),
		RuleVersion:     table.Version,
		HardConstraints: table.HardConstraints,
		Timestamp:       start.UTC(),
	}
	eval.Duration = e.now().Sub(start)

	tracing.SetEvaluationAttributes(span, eval)
	e.metrics.RecordEvaluation(eval, in.Autonomy.Requested)
	e.emit(ctx, events.NewEvaluationEvent(eval, in.Autonomy.Requested))

	e.logger.Debug("guardrail evaluated",
		"evaluation_id", eval.ID,
		"request_id", eval.RequestID,
		"final_action", eval.FinalAction,
		"primary_domain", eval.PrimaryDomain,
		"detected_domains", eval.DetectedDomains,
		"rule_version", eval.RuleVersion,
		"duration_us", eval.Duration.Microseconds(),
	)

	return eval, nil
}

func (e *Engine) resolve(ctx context.Context, table *ruletable.Table, domain string, in *guardrail.Input, ec *EvalContext) guardrail.DomainResult {
	_, span := e.tracer.Start(ctx, "guardrail.domain")
	defer span.End()

	result := resolveDomain(table, domain, in, ec, e.config.EnableTrace)
	span.SetAttributes(tracing.DomainAttributes(result)...)
	return result
}

// emit forwards event to the emitter. Failures and panics are logged and
// never reach the caller.
func (e *Engine) emit(ctx context.Context, event events.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event emitter panicked", "type", event.Type, "panic", r)
		}
	}()

	if err := e.emitter.Emit(ctx, event); err != nil {
		e.logger.Warn("failed to emit event", "type", event.Type, "error", err)
	}
}
