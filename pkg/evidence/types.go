package evidence

import (
	"context"
	"time"

	"mercator-hq/sentinel/pkg/guardrail"
)

// Record is the stored audit trail of one guardrail evaluation. Records are
// immutable once written; Hash covers every field except Hash itself.
type Record struct {
	// Identity
	ID           string `json:"id"`            // UUID v4
	EvaluationID string `json:"evaluation_id"` // Evaluation.ID
	RequestID    string `json:"request_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`

	// Timestamps
	EvaluatedAt time.Time `json:"evaluated_at"` // Evaluation.Timestamp
	RecordedAt  time.Time `json:"recorded_at"`  // When the record was built

	// Decision
	FinalAction     string                     `json:"final_action"`
	PrimaryDomain   string                     `json:"primary_domain,omitempty"`
	DetectedDomains []string                   `json:"detected_domains"`
	TriggeredRules  []string                   `json:"triggered_rules"`
	CrossDomain     guardrail.CrossDomainFlags `json:"cross_domain"`
	UserMessage     string                     `json:"user_message,omitempty"`
	Alternatives    []string                   `json:"alternatives,omitempty"`

	// Reproducibility
	InputHash   string `json:"input_hash"`   // SHA-256 of the hashed input fields
	RuleVersion uint64 `json:"rule_version"` // Rule table version in effect

	// Autonomy
	AutonomyRequested bool `json:"autonomy_requested"`
	AutonomyDenied    bool `json:"autonomy_denied"`

	Duration time.Duration `json:"duration"`

	// Results are the per-domain results. Traces are kept only when the
	// recorder is configured to store them.
	Results []guardrail.DomainResult `json:"results"`

	// Hash is the SHA-256 of the record's canonical JSON without Hash.
	Hash string `json:"hash"`
}

// NewRecord builds a record from a completed evaluation. The ID, RecordedAt
// and Hash are left for the recorder to fill in.
func NewRecord(eval *guardrail.Evaluation, autonomyRequested, keepTraces bool) *Record {
	results := make([]guardrail.DomainResult, len(eval.Results))
	copy(results, eval.Results)
	if !keepTraces {
		for i := range results {
			results[i].Traces = nil
		}
	}

	return &Record{
		EvaluationID:      eval.ID,
		RequestID:         eval.RequestID,
		SessionID:         eval.SessionID,
		TenantID:          eval.TenantID,
		EvaluatedAt:       eval.Timestamp,
		FinalAction:       string(eval.FinalAction),
		PrimaryDomain:     eval.PrimaryDomain,
		DetectedDomains:   eval.DetectedDomains,
		TriggeredRules:    eval.TriggeredRules(),
		CrossDomain:       eval.CrossDomain,
		UserMessage:       eval.UserMessage,
		Alternatives:      eval.Alternatives,
		InputHash:         eval.InputHash,
		RuleVersion:       eval.RuleVersion,
		AutonomyRequested: autonomyRequested,
		AutonomyDenied:    eval.AutonomyDenied(autonomyRequested),
		Duration:          eval.Duration,
		Results:           results,
	}
}

// Query defines filter parameters for querying evidence records.
type Query struct {
	// Time range over EvaluatedAt
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Identity filters
	EvaluationID string `json:"evaluation_id,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`

	// Decision filters
	FinalAction   string `json:"final_action,omitempty"`   // "allow", "redirect", "restrict", "block"
	PrimaryDomain string `json:"primary_domain,omitempty"` // Domain that decided the final action
	Domain        string `json:"domain,omitempty"`         // Any detected domain
	RuleID        string `json:"rule_id,omitempty"`        // Any triggered rule
	InputHash     string `json:"input_hash,omitempty"`

	RuleVersion    *uint64 `json:"rule_version,omitempty"`
	AutonomyDenied *bool   `json:"autonomy_denied,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max records to return
	Offset int `json:"offset,omitempty"` // Skip N records

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "evaluated_at", "recorded_at", "rule_version", "duration"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for evidence storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record. Storing an existing ID is an error.
	Store(ctx context.Context, record *Record) error

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Query retrieves records matching the query filters.
	// Returns an empty slice if no records match.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the query filters.
	// Pagination fields are ignored.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the query filters and returns the
	// number deleted. Pagination fields are ignored.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the storage backend.
	Close() error
}
