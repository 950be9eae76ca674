package guardrail

import "fmt"

// Role is the role of the user on whose behalf the action is taken.
type Role string

const (
	RoleUser         Role = "user"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
	RoleSystem       Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleProfessional, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (valid: user, professional, admin, system)", s)
	}
	return r, nil
}

// Input is the point-in-time description of an intended action.
// The engine reads it and never modifies it.
type Input struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`

	Intent     Intent            `json:"intent"`
	Routing    Routing           `json:"routing"`
	Confidence []ConfidenceScore `json:"confidence,omitempty"`
	Emotion    EmotionalSignal   `json:"emotion"`
	UserRole   Role              `json:"user_role"`
	Autonomy   AutonomyIntent    `json:"autonomy"`
}

// Intent describes what the user asked for.
type Intent struct {
	// ID identifies the intent class chosen by the upstream classifier.
	ID string `json:"id"`

	// Primary is the primary intent description.
	Primary string `json:"primary"`

	// Secondary holds additional intent descriptions, in classifier order.
	Secondary []string `json:"secondary,omitempty"`

	// RawText is the original user message.
	RawText string `json:"raw_text"`

	// Entities are the entities extracted from the message.
	Entities []Entity `json:"entities,omitempty"`

	IsQuestion bool `json:"is_question"`
	IsRequest  bool `json:"is_request"`
	IsCommand  bool `json:"is_command"`
}

// Entity is a single extracted entity.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Routing describes the route the dialogue layer intends to take.
type Routing struct {
	RecommendedRoute     string   `json:"recommended_route"`
	Alternates           []string `json:"alternates,omitempty"`
	RequiresData         bool     `json:"requires_data"`
	RequiresMemory       bool     `json:"requires_memory"`
	RequiresExternalData bool     `json:"requires_external_data"`
}

// ConfidenceScore is one upstream confidence estimate.
type ConfidenceScore struct {
	// Target names what the score is about (e.g. "intent", "route").
	Target string `json:"target"`

	// Value is the score in [0, 1].
	Value float64 `json:"value"`

	// Uncertainty is the uncertainty band around Value.
	Uncertainty UncertaintyBand `json:"uncertainty"`

	// Method names the calibration method that produced the score.
	Method string `json:"method,omitempty"`
}

// UncertaintyBand is a closed interval around a confidence value.
type UncertaintyBand struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// EmotionalSignal is a snapshot of the detected emotional state of the user.
type EmotionalSignal struct {
	Primary    string  `json:"primary"`
	Sentiment  float64 `json:"sentiment"`
	Stressed   bool    `json:"stressed"`
	Vulnerable bool    `json:"vulnerable"`
}

// AutonomyIntent describes whether the action is to be taken autonomously.
type AutonomyIntent struct {
	Requested bool   `json:"requested"`
	Level     string `json:"level,omitempty"`
}

// MinConfidence returns the minimum of all provided confidence values.
// ok is false when no scores are present.
func (in *Input) MinConfidence() (min float64, ok bool) {
	for i, score := range in.Confidence {
		if i == 0 || score.Value < min {
			min = score.Value
		}
	}
	return min, len(in.Confidence) > 0
}

// ConfidenceFor returns the value of the first score with the given target.
func (in *Input) ConfidenceFor(target string) (float64, bool) {
	for _, score := range in.Confidence {
		if score.Target == target {
			return score.Value, true
		}
	}
	return 0, false
}
