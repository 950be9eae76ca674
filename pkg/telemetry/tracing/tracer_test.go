package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/guardrail"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		wantErr bool
		enabled bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:   "disabled tracing",
			config: &config.TracingConfig{Enabled: false, ServiceName: "test-service"},
		},
		{
			name: "enabled with insecure endpoint",
			config: &config.TracingConfig{
				Enabled:     true,
				SampleRatio: 0.5,
				Endpoint:    "localhost:4317",
				ServiceName: "test-service",
				Insecure:    true,
				Timeout:     time.Second,
			},
			enabled: true,
		},
		{
			name:    "enabled without endpoint",
			config:  &config.TracingConfig{Enabled: true, SampleRatio: 1.0},
			wantErr: true,
		},
		{
			name:    "invalid ratio",
			config:  &config.TracingConfig{Enabled: true, SampleRatio: 2, Endpoint: "localhost:4317"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer tracer.Shutdown(context.Background())

			if tracer.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.enabled)
			}
			if tracer.Tracer() == nil {
				t.Error("Tracer() returned nil")
			}
		})
	}
}

func TestTracer_DisabledIsNoop(t *testing.T) {
	tracer, err := New(&config.TracingConfig{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, span := tracer.Start(context.Background(), "noop")
	span.End()

	if TraceID(ctx) != "" {
		t.Errorf("TraceID() = %q, want empty for noop span", TraceID(ctx))
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestTracer_RecordsEvaluation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer := NewWithExporter(exporter)
	defer tracer.Shutdown(context.Background())

	in := &guardrail.Input{RequestID: "req-1", Intent: guardrail.Intent{Primary: "transfer", RawText: "secret text"}}
	eval := &guardrail.Evaluation{
		FinalAction:   guardrail.ActionRestrict,
		PrimaryDomain: "financial",
		RuleVersion:   3,
		InputHash:     "abc",
		Results: []guardrail.DomainResult{
			{Domain: "financial", Action: guardrail.ActionRestrict, TriggeredRules: []string{"financial-transfer"}},
		},
	}

	ctx, span := tracer.Start(context.Background(), "guardrail.evaluate")
	span.SetAttributes(InputAttributes(in)...)
	SetEvaluationAttributes(span, eval)
	if TraceID(ctx) == "" || SpanID(ctx) == "" {
		t.Error("expected valid trace and span ids")
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	want := map[string]string{
		AttrRequestID:     "req-1",
		AttrIntent:        "transfer",
		AttrFinalAction:   "restrict",
		AttrPrimaryDomain: "financial",
		AttrRuleVersion:   "3",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
	for _, v := range attrs {
		if v == "secret text" {
			t.Error("raw text must not be recorded on spans")
		}
	}
}

func TestSetError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer := NewWithExporter(exporter)
	defer tracer.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "failing")
	SetError(span, nil)
	SetError(span, errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if len(spans[0].Events) != 1 {
		t.Errorf("events = %d, want 1 recorded error", len(spans[0].Events))
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tracer := NewWithExporter(tracetest.NewInMemoryExporter())
	defer tracer.Shutdown(context.Background())

	var gotTraceID string
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotTraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id in handler = %q", gotTraceID)
	}
	if rec.Header().Get("X-Trace-ID") != gotTraceID {
		t.Errorf("X-Trace-ID = %q, want %q", rec.Header().Get("X-Trace-ID"), gotTraceID)
	}

	carrier := map[string]string{}
	InjectToMap(req.Context(), carrier)
	if len(carrier) != 0 {
		t.Errorf("InjectToMap() on context without span = %v, want empty", carrier)
	}
}
