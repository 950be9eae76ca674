package guardrail

import "time"

// ConditionResult records how one condition was evaluated.
type ConditionResult struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Expected any      `json:"expected"`
	Actual   any      `json:"actual,omitempty"`

	// Found is false when the field path did not resolve to a value.
	Found   bool `json:"found"`
	Matched bool `json:"matched"`
}

// RuleTrace is the full evaluation trace of a single rule.
type RuleTrace struct {
	RuleID     string            `json:"rule_id"`
	Domain     string            `json:"domain"`
	Action     Action            `json:"action"`
	Matched    bool              `json:"matched"`
	Conditions []ConditionResult `json:"conditions"`
	Duration   time.Duration     `json:"duration"`
}

// DomainResult is the outcome of resolving one domain.
type DomainResult struct {
	Domain         string   `json:"domain"`
	Action         Action   `json:"action"`
	TriggeredRules []string `json:"triggered_rules"`

	// ExplanationCode identifies where Explanation came from: the id of the
	// deciding rule, or "default:<domain>:<action>".
	ExplanationCode string   `json:"explanation_code,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
	Alternatives    []string `json:"alternatives,omitempty"`

	// Confidence is always 1.0; evaluation is deterministic.
	Confidence float64 `json:"confidence"`

	// Traces holds per-rule traces when tracing is enabled.
	Traces []*RuleTrace `json:"traces,omitempty"`
}

// CrossDomainFlags summarize the first-pass results of every domain other
// than the cross-cutting one.
type CrossDomainFlags struct {
	AnyBlocked    bool `json:"any_blocked"`
	AnyRestricted bool `json:"any_restricted"`
	AnyRedirected bool `json:"any_redirected"`
}

// HardConstraints are table-level switches read by IsAutonomyPermitted.
type HardConstraints struct {
	NoAutonomyUnderBlock    bool `json:"no_autonomy_under_block" yaml:"no_autonomy_under_block"`
	NoAutonomyUnderRestrict bool `json:"no_autonomy_under_restrict" yaml:"no_autonomy_under_restrict"`
}

// DefaultHardConstraints returns constraints with both flags enabled.
func DefaultHardConstraints() HardConstraints {
	return HardConstraints{
		NoAutonomyUnderBlock:    true,
		NoAutonomyUnderRestrict: true,
	}
}

// Evaluation is the auditable result of one guardrail evaluation.
type Evaluation struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`

	FinalAction Action `json:"final_action"`

	// PrimaryDomain is the domain whose result determined FinalAction.
	// It is empty when the action is allowed.
	PrimaryDomain string `json:"primary_domain,omitempty"`

	DetectedDomains []string         `json:"detected_domains"`
	Results         []DomainResult   `json:"results"`
	CrossDomain     CrossDomainFlags `json:"cross_domain"`

	UserMessage  string   `json:"user_message,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`

	InputHash       string          `json:"input_hash"`
	RuleVersion     uint64          `json:"rule_version"`
	HardConstraints HardConstraints `json:"hard_constraints"`

	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// IsAllowed reports whether the final action is allow.
func (e *Evaluation) IsAllowed() bool {
	return e.FinalAction == ActionAllow
}

// IsAutonomyPermitted reports whether an autonomous action may proceed under
// this evaluation's final action and hard constraints.
func (e *Evaluation) IsAutonomyPermitted() bool {
	if e.HardConstraints.NoAutonomyUnderBlock && e.FinalAction == ActionBlock {
		return false
	}
	if e.HardConstraints.NoAutonomyUnderRestrict && e.FinalAction == ActionRestrict {
		return false
	}
	return true
}

// AutonomyDenied reports whether this decision denies an autonomous action
// that was requested.
func (e *Evaluation) AutonomyDenied(requested bool) bool {
	return requested && !e.IsAutonomyPermitted()
}

// GetUserMessage returns the user-facing message, empty when allowed.
func (e *Evaluation) GetUserMessage() string {
	return e.UserMessage
}

// GetAlternatives returns the suggested alternatives.
func (e *Evaluation) GetAlternatives() []string {
	return e.Alternatives
}

// TriggeredRules returns every triggered rule id across all domains, in
// evaluation order.
func (e *Evaluation) TriggeredRules() []string {
	var ids []string
	for _, r := range e.Results {
		ids = append(ids, r.TriggeredRules...)
	}
	return ids
}

// Result returns the result for a domain.
func (e *Evaluation) Result(domain string) (DomainResult, bool) {
	for _, r := range e.Results {
		if r.Domain == domain {
			return r, true
		}
	}
	return DomainResult{}, false
}
