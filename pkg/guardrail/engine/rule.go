package engine

import (
	"time"

	"mercator-hq/sentinel/pkg/guardrail"
)

// EvaluateRule evaluates every condition of the rule and records a trace.
// Conditions are not short-circuited so the trace is always complete.
func EvaluateRule(rule *guardrail.Rule, in *guardrail.Input, ec *EvalContext) *guardrail.RuleTrace {
	start := time.Now()

	trace := &guardrail.RuleTrace{
		RuleID:     rule.ID,
		Domain:     rule.Domain,
		Action:     rule.Action,
		Matched:    true,
		Conditions: make([]guardrail.ConditionResult, 0, len(rule.Conditions)),
	}

	for i := range rule.Conditions {
		res := EvaluateCondition(&rule.Conditions[i], in, ec)
		trace.Conditions = append(trace.Conditions, res)
		if !res.Matched {
			trace.Matched = false
		}
	}

	trace.Duration = time.Since(start)
	return trace
}
