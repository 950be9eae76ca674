package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
	"mercator-hq/sentinel/pkg/telemetry/events"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDefaultEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(nil, ruletable.NewDefaultSource(), quietLogger(), opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return eng
}

func parseTable(t *testing.T, doc string) *ruletable.Table {
	t.Helper()
	tbl, err := ruletable.Parse([]byte(doc), "test")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tbl
}

func TestEngine_Scenarios(t *testing.T) {
	eng := newDefaultEngine(t)

	tests := []struct {
		name             string
		input            *guardrail.Input
		wantAction       guardrail.Action
		wantPrimary      string
		wantDetected     []string
		wantAutonomy     bool
		wantMessage      string
		wantAlternatives bool
	}{
		{
			name: "benign reminder is allowed",
			input: &guardrail.Input{
				Intent:   guardrail.Intent{Primary: "set reminder", RawText: "schedule a dosage reminder"},
				UserRole: guardrail.RoleUser,
			},
			wantAction:   guardrail.ActionAllow,
			wantDetected: []string{"system"},
			wantAutonomy: true,
		},
		{
			name: "crisis language is blocked",
			input: &guardrail.Input{
				Intent:   guardrail.Intent{Primary: "express feelings", RawText: "I want to kill myself"},
				UserRole: guardrail.RoleUser,
			},
			wantAction:       guardrail.ActionBlock,
			wantPrimary:      "self_harm",
			wantDetected:     []string{"self_harm", "system"},
			wantAutonomy:     false,
			wantMessage:      "This conversation mentions self-harm, so I can't continue with this request. Support is available right now.",
			wantAlternatives: true,
		},
		{
			name: "autonomous transfer is restricted",
			input: &guardrail.Input{
				Intent:   guardrail.Intent{Primary: "pay rent", RawText: "please transfer money to my landlord"},
				Routing:  guardrail.Routing{RecommendedRoute: "payments.transfer"},
				UserRole: guardrail.RoleUser,
				Autonomy: guardrail.AutonomyIntent{Requested: true},
			},
			wantAction:       guardrail.ActionRestrict,
			wantPrimary:      "financial",
			wantDetected:     []string{"financial", "system"},
			wantAutonomy:     false,
			wantMessage:      "Moving money needs your explicit confirmation.",
			wantAlternatives: true,
		},
		{
			name: "full autonomy needs an administrator",
			input: &guardrail.Input{
				Intent:   guardrail.Intent{Primary: "clean inbox", RawText: "archive old mail"},
				UserRole: guardrail.RoleUser,
				Autonomy: guardrail.AutonomyIntent{Requested: true, Level: "full"},
			},
			wantAction:   guardrail.ActionBlock,
			wantPrimary:  "system",
			wantDetected: []string{"system"},
			wantAutonomy: false,
			wantMessage:  "Full autonomy is limited to administrators.",
		},
		{
			name: "full autonomy for an administrator",
			input: &guardrail.Input{
				Intent:   guardrail.Intent{Primary: "clean inbox", RawText: "archive old mail"},
				UserRole: guardrail.RoleAdmin,
				Autonomy: guardrail.AutonomyIntent{Requested: true, Level: "full"},
			},
			wantAction:   guardrail.ActionAllow,
			wantDetected: []string{"system"},
			wantAutonomy: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval, err := eng.Evaluate(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if eval.FinalAction != tt.wantAction {
				t.Errorf("FinalAction = %s, want %s (rules %v)", eval.FinalAction, tt.wantAction, eval.TriggeredRules())
			}
			if eval.PrimaryDomain != tt.wantPrimary {
				t.Errorf("PrimaryDomain = %q, want %q", eval.PrimaryDomain, tt.wantPrimary)
			}
			if !reflect.DeepEqual(eval.DetectedDomains, tt.wantDetected) {
				t.Errorf("DetectedDomains = %v, want %v", eval.DetectedDomains, tt.wantDetected)
			}
			if eval.IsAutonomyPermitted() != tt.wantAutonomy {
				t.Errorf("IsAutonomyPermitted() = %v, want %v", eval.IsAutonomyPermitted(), tt.wantAutonomy)
			}
			if eval.GetUserMessage() != tt.wantMessage {
				t.Errorf("GetUserMessage() = %q, want %q", eval.GetUserMessage(), tt.wantMessage)
			}
			if tt.wantAlternatives && len(eval.GetAlternatives()) == 0 {
				t.Error("expected alternatives")
			}
			if eval.IsAllowed() && (eval.UserMessage != "" || len(eval.Alternatives) != 0) {
				t.Error("allowed evaluation carries a message")
			}
			if eval.RuleVersion != 1 || !eval.HardConstraints.NoAutonomyUnderRestrict {
				t.Errorf("RuleVersion = %d, HardConstraints = %+v", eval.RuleVersion, eval.HardConstraints)
			}
		})
	}
}

func TestEngine_ReconcilesCrossCuttingDomain(t *testing.T) {
	eng := newDefaultEngine(t)

	in := &guardrail.Input{
		Intent:   guardrail.Intent{Primary: "pay rent", RawText: "please transfer money to my landlord"},
		Routing:  guardrail.Routing{RecommendedRoute: "payments.transfer"},
		Autonomy: guardrail.AutonomyIntent{Requested: true},
	}

	eval, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !eval.CrossDomain.AnyRestricted || eval.CrossDomain.AnyBlocked {
		t.Errorf("CrossDomain = %+v", eval.CrossDomain)
	}
	sys, ok := eval.Result("system")
	if !ok {
		t.Fatal("no system result")
	}
	if !reflect.DeepEqual(sys.TriggeredRules, []string{"system-autonomy-under-restrict"}) {
		t.Errorf("system TriggeredRules = %v", sys.TriggeredRules)
	}
	if len(eval.Results) != 2 || eval.Results[1].Domain != "system" {
		t.Errorf("system result should replace its first-pass result in place: %+v", eval.Results)
	}

	// Without autonomy the reconciliation rule does not fire.
	in.Autonomy.Requested = false
	eval, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	sys, _ = eval.Result("system")
	if sys.Action != guardrail.ActionAllow || len(sys.TriggeredRules) != 0 {
		t.Errorf("system result = %+v, want allow", sys)
	}
	if eval.FinalAction != guardrail.ActionRestrict || eval.PrimaryDomain != "financial" {
		t.Errorf("FinalAction = %s, PrimaryDomain = %s", eval.FinalAction, eval.PrimaryDomain)
	}
}

const tieTable = `
version: 1
cross_cutting_domain: system
domains:
  - name: alpha
    keywords:
      high: [alpha]
    rules:
      - id: alpha-redirect
        action: redirect
        explanation: Alpha requests go elsewhere.
  - name: beta
    keywords:
      high: [beta]
    rules:
      - id: beta-redirect
        action: redirect
      - id: beta-unknown-field
        action: block
        conditions:
          - field: intent.nonexistent
            operator: neq
            value: anything
  - name: system
`

func TestEngine_TieAndUnknownField(t *testing.T) {
	eng, err := NewEngine(nil, ruletable.NewMemorySource(parseTable(t, tieTable)), quietLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	eval, err := eng.Evaluate(context.Background(), &guardrail.Input{
		Intent: guardrail.Intent{RawText: "alpha and beta"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if eval.FinalAction != guardrail.ActionRedirect || eval.PrimaryDomain != "alpha" {
		t.Errorf("got (%s, %s), want (redirect, alpha)", eval.FinalAction, eval.PrimaryDomain)
	}
	if eval.UserMessage != "Alpha requests go elsewhere." {
		t.Errorf("UserMessage = %q", eval.UserMessage)
	}
	if !eval.CrossDomain.AnyRedirected {
		t.Error("AnyRedirected should be set")
	}
	for _, id := range eval.TriggeredRules() {
		if id == "beta-unknown-field" {
			t.Error("rule on an unknown field triggered")
		}
	}

	beta, _ := eval.Result("beta")
	if beta.ExplanationCode != "generic:redirect" {
		t.Errorf("beta ExplanationCode = %q", beta.ExplanationCode)
	}
	if beta.Traces != nil {
		t.Error("traces kept although tracing is disabled")
	}
}

func TestEngine_Determinism(t *testing.T) {
	ids := 0
	eng := newDefaultEngine(t, WithIDGenerator(func() string {
		ids++
		return fmt.Sprintf("eval-%d", ids)
	}))

	in := &guardrail.Input{
		RequestID: "req-1",
		Intent:    guardrail.Intent{Primary: "pay rent", RawText: "please transfer money to my landlord"},
		Routing:   guardrail.Routing{RecommendedRoute: "payments.transfer"},
		Autonomy:  guardrail.AutonomyIntent{Requested: true},
	}

	first, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := eng.Evaluate(context.Background(), in)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if next.ID == first.ID {
			t.Fatal("evaluation ids must be unique")
		}
		if next.FinalAction != first.FinalAction ||
			next.PrimaryDomain != first.PrimaryDomain ||
			next.InputHash != first.InputHash ||
			next.UserMessage != first.UserMessage ||
			!reflect.DeepEqual(next.Results, first.Results) {
			t.Fatalf("evaluation %d differs from the first", i)
		}
	}
}

func TestEngine_EnableTrace(t *testing.T) {
	cfg := DefaultEngineConfig().WithTrace(true)
	eng, err := NewEngine(cfg, ruletable.NewDefaultSource(), quietLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	eval, err := eng.Evaluate(context.Background(), &guardrail.Input{Intent: guardrail.Intent{RawText: "hello"}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	sys, _ := eval.Result("system")
	if len(sys.Traces) != len(eng.Table().RulesFor("system")) {
		t.Errorf("system traces = %d, want one per rule", len(sys.Traces))
	}
}

func TestEngine_NilInput(t *testing.T) {
	eng := newDefaultEngine(t)
	if _, err := eng.Evaluate(context.Background(), nil); !errors.Is(err, ErrNilInput) {
		t.Errorf("Evaluate(nil) error = %v, want ErrNilInput", err)
	}
}

func TestNewEngine_Errors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *EngineConfig
		source ruletable.Source
		check  func(error) bool
	}{
		{
			name:   "invalid config",
			cfg:    DefaultEngineConfig().WithMaxRules(0),
			source: ruletable.NewDefaultSource(),
			check:  func(err error) bool { return errors.Is(err, ErrInvalidConfig) },
		},
		{
			name:  "nil source",
			check: func(err error) bool { return errors.Is(err, ErrNoSource) },
		},
		{
			name:   "empty memory source",
			source: ruletable.NewMemorySource(nil),
			check:  func(err error) bool { return errors.Is(err, ruletable.ErrNoTable) },
		},
		{
			name:   "too many domains",
			cfg:    DefaultEngineConfig().WithMaxDomains(2),
			source: ruletable.NewDefaultSource(),
			check: func(err error) bool {
				var limitErr *LimitError
				return errors.As(err, &limitErr) && limitErr.Kind == "domains"
			},
		},
		{
			name:   "invalid table",
			source: ruletable.NewMemorySource(&ruletable.Table{Version: 0}),
			check: func(err error) bool {
				var validationErr *ruletable.ValidationError
				var reloadErr *ReloadError
				return errors.As(err, &validationErr) && errors.As(err, &reloadErr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg, tt.source, quietLogger())
			if err == nil {
				t.Fatal("NewEngine() error = nil")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func versionedTable(t *testing.T, version uint64) *ruletable.Table {
	return parseTable(t, fmt.Sprintf(`
version: %d
cross_cutting_domain: system
domains:
  - name: alpha
    keywords:
      high: [alpha]
    rules:
      - id: alpha-restrict
        action: restrict
        explanation: "version %d"
  - name: system
`, version, version))
}

func TestEngine_Reload(t *testing.T) {
	source := ruletable.NewMemorySource(versionedTable(t, 1))
	eng, err := NewEngine(nil, source, quietLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	// Same version is rejected and the active table is kept.
	source.Set(versionedTable(t, 1))
	err = eng.Reload(context.Background())
	var versionErr *VersionError
	if !errors.As(err, &versionErr) {
		t.Fatalf("Reload() error = %v, want VersionError", err)
	}
	if versionErr.Current != 1 || versionErr.Proposed != 1 {
		t.Errorf("VersionError = %+v", versionErr)
	}

	// Invalid tables are rejected.
	source.Set(&ruletable.Table{Version: 5})
	if err := eng.Reload(context.Background()); err == nil {
		t.Fatal("Reload() of invalid table succeeded")
	}
	if eng.Table().Version != 1 {
		t.Errorf("active version = %d after failed reloads, want 1", eng.Table().Version)
	}

	source.Set(versionedTable(t, 3))
	if err := eng.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if eng.Table().Version != 3 {
		t.Errorf("active version = %d, want 3", eng.Table().Version)
	}

	// Going back is rejected.
	source.Set(versionedTable(t, 2))
	if err := eng.Reload(context.Background()); !errors.As(err, &versionErr) {
		t.Errorf("Reload() of older table error = %v, want VersionError", err)
	}
}

func TestEngine_ConcurrentReload(t *testing.T) {
	source := ruletable.NewMemorySource(versionedTable(t, 1))
	eng, err := NewEngine(nil, source, quietLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	tables := make([]*ruletable.Table, 0, 20)
	for v := uint64(2); v <= 21; v++ {
		tables = append(tables, versionedTable(t, v))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := &guardrail.Input{Intent: guardrail.Intent{RawText: "alpha"}}
			for ctx.Err() == nil {
				eval, err := eng.Evaluate(ctx, in)
				if err != nil {
					errs <- err
					return
				}
				want := fmt.Sprintf("version %d", eval.RuleVersion)
				if eval.UserMessage != want {
					errs <- fmt.Errorf("evaluation mixed table versions: %q under version %d", eval.UserMessage, eval.RuleVersion)
					return
				}
			}
		}()
	}

	for _, tbl := range tables {
		source.Set(tbl)
		if err := eng.Reload(context.Background()); err != nil {
			t.Errorf("Reload() error = %v", err)
		}
	}
	cancel()
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if eng.Table().Version != 21 {
		t.Errorf("active version = %d, want 21", eng.Table().Version)
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEmitter) ofType(typ events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestEngine_EmitsEvents(t *testing.T) {
	rec := &recordingEmitter{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng := newDefaultEngine(t, WithEmitter(rec), WithClock(func() time.Time { return fixed }))

	if got := rec.ofType(events.TypeRuleTableReload); len(got) != 1 || got[0].Status != events.StatusSuccess {
		t.Fatalf("reload events = %+v", got)
	}

	eval, err := eng.Evaluate(context.Background(), &guardrail.Input{
		Intent:   guardrail.Intent{Primary: "pay rent", RawText: "please transfer money to my landlord"},
		Routing:  guardrail.Routing{RecommendedRoute: "payments.transfer"},
		Autonomy: guardrail.AutonomyIntent{Requested: true},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	got := rec.ofType(events.TypeEvaluation)
	if len(got) != 1 {
		t.Fatalf("evaluation events = %d, want 1", len(got))
	}
	ev := got[0]
	if ev.Status != "restrict" || ev.Payload.Evaluation != eval {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Payload.AutonomyRequested || !ev.Payload.AutonomyDenied {
		t.Errorf("autonomy metadata = requested %v, denied %v", ev.Payload.AutonomyRequested, ev.Payload.AutonomyDenied)
	}
	if !eval.Timestamp.Equal(fixed) || eval.Duration != 0 {
		t.Errorf("Timestamp = %v, Duration = %v", eval.Timestamp, eval.Duration)
	}
}

func TestEngine_EmitterFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name    string
		emitter events.Emitter
	}{
		{"error", events.EmitterFunc(func(context.Context, events.Event) error { return errors.New("sink down") })},
		{"panic", events.EmitterFunc(func(context.Context, events.Event) error { panic("sink exploded") })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newDefaultEngine(t, WithEmitter(tt.emitter))
			eval, err := eng.Evaluate(context.Background(), &guardrail.Input{Intent: guardrail.Intent{RawText: "I want to kill myself"}})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if eval.FinalAction != guardrail.ActionBlock {
				t.Errorf("FinalAction = %s, want block", eval.FinalAction)
			}
		})
	}
}

func TestEngine_Metrics(t *testing.T) {
	collector := metrics.NewCollector(nil, prometheus.NewRegistry())
	eng := newDefaultEngine(t, WithMetrics(collector))

	for _, text := range []string{"I want to kill myself", "hello there"} {
		if _, err := eng.Evaluate(context.Background(), &guardrail.Input{Intent: guardrail.Intent{RawText: text}}); err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
	}

	count, err := testutil.GatherAndCount(collector.Registry(), "sentinel_guardrail_evaluations_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("evaluation series = %d, want 2 (block and allow)", count)
	}

	expected := `
# HELP sentinel_guardrail_rule_table_version Version of the active rule table
# TYPE sentinel_guardrail_rule_table_version gauge
sentinel_guardrail_rule_table_version 1
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "sentinel_guardrail_rule_table_version"); err != nil {
		t.Errorf("rule table version metric: %v", err)
	}
}

func TestEngine_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer := tracing.NewWithExporter(exporter)
	defer tracer.Shutdown(context.Background())

	eng := newDefaultEngine(t, WithTracer(tracer.Tracer()))
	if _, err := eng.Evaluate(context.Background(), &guardrail.Input{Intent: guardrail.Intent{RawText: "I want to kill myself"}}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	spans := exporter.GetSpans()
	names := map[string]int{}
	for _, s := range spans {
		names[s.Name]++
	}
	if names["guardrail.evaluate"] != 1 {
		t.Errorf("evaluate spans = %d, want 1", names["guardrail.evaluate"])
	}
	// self_harm, system, and the reconciled system pass.
	if names["guardrail.domain"] != 3 {
		t.Errorf("domain spans = %d, want 3", names["guardrail.domain"])
	}

	for _, s := range spans {
		if s.Name != "guardrail.evaluate" {
			continue
		}
		for _, kv := range s.Attributes {
			if string(kv.Key) == tracing.AttrFinalAction && kv.Value.AsString() != "block" {
				t.Errorf("final action attribute = %s", kv.Value.AsString())
			}
		}
	}
}
