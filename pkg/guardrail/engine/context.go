package engine

import "mercator-hq/sentinel/pkg/guardrail"

// EvalContext carries values derived during an evaluation that conditions
// may refer to under the "context." prefix.
//
// The cross-domain flags are only present once the first pass is complete:
// a context.any_* condition never matches during the first pass.
type EvalContext struct {
	// DetectedDomains are the domains selected for this evaluation.
	DetectedDomains []string

	// MinConfidence is the lowest upstream confidence score.
	MinConfidence    float64
	HasMinConfidence bool

	// Flags summarize the first-pass results. Valid only when Reconciled.
	Flags      guardrail.CrossDomainFlags
	Reconciled bool
}

// NewEvalContext builds the first-pass context for in.
func NewEvalContext(in *guardrail.Input, detected []string) *EvalContext {
	ec := &EvalContext{DetectedDomains: detected}
	if in != nil {
		ec.MinConfidence, ec.HasMinConfidence = in.MinConfidence()
	}
	return ec
}

// WithFlags returns a copy of the context carrying the cross-domain flags.
func (c *EvalContext) WithFlags(flags guardrail.CrossDomainFlags) *EvalContext {
	cc := *c
	cc.Flags = flags
	cc.Reconciled = true
	return &cc
}
