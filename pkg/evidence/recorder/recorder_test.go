package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/evidence/storage"
	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/telemetry/events"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvaluation(id string) *guardrail.Evaluation {
	return &guardrail.Evaluation{
		ID:              id,
		RequestID:       "req-" + id,
		FinalAction:     guardrail.ActionRestrict,
		PrimaryDomain:   "financial",
		DetectedDomains: []string{"financial", "autonomy"},
		Results: []guardrail.DomainResult{
			{
				Domain:         "financial",
				Action:         guardrail.ActionRestrict,
				TriggeredRules: []string{"fin-1"},
				Confidence:     1.0,
				Traces:         []*guardrail.RuleTrace{{RuleID: "fin-1", Domain: "financial", Matched: true}},
			},
			{Domain: "autonomy", Action: guardrail.ActionAllow, TriggeredRules: []string{}, Confidence: 1.0},
		},
		CrossDomain:     guardrail.CrossDomainFlags{AnyRestricted: true},
		UserMessage:     "Please confirm.",
		InputHash:       "abc",
		RuleVersion:     3,
		HardConstraints: guardrail.DefaultHardConstraints(),
		Timestamp:       fixedNow.Add(-time.Second),
		Duration:        42 * time.Microsecond,
	}
}

// blockingStorage blocks every Store until release is closed.
type blockingStorage struct {
	*storage.MemoryStorage
	release chan struct{}
}

func (s *blockingStorage) Store(ctx context.Context, r *evidence.Record) error {
	<-s.release
	return s.MemoryStorage.Store(ctx, r)
}

type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) Store(context.Context, *evidence.Record) error {
	return errors.New("disk full")
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.RecorderConfig{AsyncBuffer: 10, StoreTraces: true})
	if c.AsyncBuffer != 10 || c.WriteTimeout != 5*time.Second || !c.StoreTraces {
		t.Errorf("FromConfig() = %+v", c)
	}
}

func TestRecorder_Emit(t *testing.T) {
	tests := []struct {
		name        string
		storeTraces bool
		wantTraces  bool
	}{
		{"traces stripped", false, false},
		{"traces kept", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			rec := New(store, &Config{StoreTraces: tt.storeTraces}, quietLogger(), nil, WithClock(func() time.Time { return fixedNow }))

			event := events.NewEvaluationEvent(testEvaluation("e1"), true)
			if err := rec.Emit(context.Background(), event); err != nil {
				t.Fatalf("Emit() error = %v", err)
			}
			if err := rec.Close(context.Background()); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			records, err := store.Query(context.Background(), &evidence.Query{})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("stored %d records, want 1", len(records))
			}
			r := records[0]
			if r.ID == "" || r.EvaluationID != "e1" {
				t.Errorf("identity = %q/%q", r.ID, r.EvaluationID)
			}
			if !r.RecordedAt.Equal(fixedNow) {
				t.Errorf("RecordedAt = %v, want %v", r.RecordedAt, fixedNow)
			}
			if !r.Verify() {
				t.Error("stored record does not verify")
			}
			if !r.AutonomyRequested || !r.AutonomyDenied {
				t.Errorf("autonomy requested=%v denied=%v, want both true", r.AutonomyRequested, r.AutonomyDenied)
			}
			if got := len(r.Results[0].Traces) > 0; got != tt.wantTraces {
				t.Errorf("traces present = %v, want %v", got, tt.wantTraces)
			}
			if len(r.TriggeredRules) != 1 || r.TriggeredRules[0] != "fin-1" {
				t.Errorf("TriggeredRules = %v", r.TriggeredRules)
			}
		})
	}
}

func TestRecorder_IgnoresOtherEvents(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := New(store, nil, quietLogger(), nil)

	if err := rec.Emit(context.Background(), events.NewReloadEvent(2, nil, fixedNow)); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	rec.Close(context.Background())

	if store.Size() != 0 {
		t.Errorf("stored %d records, want 0", store.Size())
	}
}

func TestRecorder_BufferFull(t *testing.T) {
	store := &blockingStorage{MemoryStorage: storage.NewMemoryStorage(), release: make(chan struct{})}
	collector := metrics.NewCollector(nil, prometheus.NewRegistry())
	rec := New(store, &Config{AsyncBuffer: 1}, quietLogger(), collector)

	ctx := context.Background()
	var full error
	// One record is held by the worker and one fills the channel.
	for i := range 5 {
		if err := rec.Emit(ctx, events.NewEvaluationEvent(testEvaluation(string(rune('a'+i))), false)); err != nil {
			full = err
			break
		}
	}
	if !errors.Is(full, events.ErrBufferFull) {
		t.Fatalf("Emit() error = %v, want ErrBufferFull", full)
	}

	close(store.release)
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	count, err := testutil.GatherAndCount(collector.Registry(), "sentinel_guardrail_evidence_records_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count == 0 {
		t.Error("dropped record not counted in evidence_records_total")
	}
}

func TestRecorder_ClosedRejects(t *testing.T) {
	rec := New(storage.NewMemoryStorage(), nil, quietLogger(), nil)
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rec.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err := rec.Emit(context.Background(), events.NewEvaluationEvent(testEvaluation("late"), false))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Emit() after Close error = %v, want ErrClosed", err)
	}
}

func TestRecorder_CloseTimeout(t *testing.T) {
	store := &blockingStorage{MemoryStorage: storage.NewMemoryStorage(), release: make(chan struct{})}
	defer close(store.release)
	rec := New(store, nil, quietLogger(), nil)

	if err := rec.Emit(context.Background(), events.NewEvaluationEvent(testEvaluation("slow"), false)); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rec.Close(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want deadline exceeded", err)
	}
}

func TestRecorder_RecordSync(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := New(store, nil, quietLogger(), nil)
	defer rec.Close(context.Background())

	r, err := rec.Record(context.Background(), events.NewEvaluationEvent(testEvaluation("sync"), false))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, err := store.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Hash != r.Hash {
		t.Errorf("stored hash = %s, want %s", got.Hash, r.Hash)
	}

	failing := New(failingStorage{storage.NewMemoryStorage()}, nil, quietLogger(), nil)
	defer failing.Close(context.Background())
	_, err = failing.Record(context.Background(), events.NewEvaluationEvent(testEvaluation("x"), false))
	var recErr *evidence.RecorderError
	if !errors.As(err, &recErr) || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Record() error = %v, want RecorderError wrapping disk full", err)
	}
}
