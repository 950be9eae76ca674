package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mercator-hq/sentinel/pkg/guardrail"
)

// hashedFields are the decision-relevant input fields covered by the input
// hash. Field order is fixed by the struct, so the JSON is canonical.
type hashedFields struct {
	IntentPrimary     string `json:"intent.primary"`
	IntentID          string `json:"intent.id"`
	RecommendedRoute  string `json:"routing.recommended_route"`
	UserRole          string `json:"user.role"`
	AutonomyRequested bool   `json:"autonomy.requested"`
	AutonomyLevel     string `json:"autonomy.level"`
	EmotionPrimary    string `json:"emotion.primary"`
	EmotionStressed   bool   `json:"emotion.stressed"`
	EmotionVulnerable bool   `json:"emotion.vulnerable"`
}

// HashInput returns the hex SHA-256 of the canonical JSON of the hashed
// input fields. Raw text, identifiers and timestamps are excluded.
func HashInput(in *guardrail.Input) string {
	if in == nil {
		return ""
	}
	// Marshaling strings and bools cannot fail.
	b, _ := json.Marshal(hashedFields{
		IntentPrimary:     in.Intent.Primary,
		IntentID:          in.Intent.ID,
		RecommendedRoute:  in.Routing.RecommendedRoute,
		UserRole:          string(in.UserRole),
		AutonomyRequested: in.Autonomy.Requested,
		AutonomyLevel:     in.Autonomy.Level,
		EmotionPrimary:    in.Emotion.Primary,
		EmotionStressed:   in.Emotion.Stressed,
		EmotionVulnerable: in.Emotion.Vulnerable,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
