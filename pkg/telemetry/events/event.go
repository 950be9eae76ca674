package events

import (
	"time"

	"mercator-hq/sentinel/pkg/guardrail"
)

// Type identifies what an event describes.
type Type string

const (
	// TypeEvaluation is emitted once per guardrail evaluation.
	TypeEvaluation Type = "guardrail.evaluation"

	// TypeRuleTableReload is emitted after every reload attempt.
	TypeRuleTableReload Type = "guardrail.rule_table_reload"
)

// Reload statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event is one outbound telemetry record.
type Event struct {
	Type      Type      `json:"type"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// Payload carries the event body. Evaluation is set for evaluation events.
type Payload struct {
	Evaluation *guardrail.Evaluation `json:"evaluation,omitempty"`

	AutonomyRequested bool `json:"autonomy_requested"`
	AutonomyDenied    bool `json:"autonomy_denied"`

	RuleVersion uint64            `json:"rule_version,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewEvaluationEvent builds the event for a completed evaluation. Its
// status is the final action.
func NewEvaluationEvent(eval *guardrail.Evaluation, autonomyRequested bool) Event {
	return Event{
		Type:      TypeEvaluation,
		Status:    string(eval.FinalAction),
		Message:   eval.UserMessage,
		Timestamp: eval.Timestamp,
		Payload: Payload{
			Evaluation:        eval,
			AutonomyRequested: autonomyRequested,
			AutonomyDenied:    eval.AutonomyDenied(autonomyRequested),
			RuleVersion:       eval.RuleVersion,
		},
	}
}

// NewReloadEvent builds the event for a rule table reload attempt.
func NewReloadEvent(version uint64, err error, at time.Time) Event {
	ev := Event{
		Type:      TypeRuleTableReload,
		Status:    StatusSuccess,
		Timestamp: at,
		Payload:   Payload{RuleVersion: version},
	}
	if err != nil {
		ev.Status = StatusFailed
		ev.Message = err.Error()
	}
	return ev
}
