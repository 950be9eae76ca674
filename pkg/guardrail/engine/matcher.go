package engine

import "mercator-hq/sentinel/pkg/guardrail"

// EvaluateCondition resolves the condition's field and applies its operator.
// An unresolvable field never matches.
func EvaluateCondition(cond *guardrail.Condition, in *guardrail.Input, ec *EvalContext) guardrail.ConditionResult {
	result := guardrail.ConditionResult{
		Field:    cond.Field,
		Operator: cond.Operator,
		Expected: cond.Value,
	}

	actual, found := lookupField(cond.Field, in, ec)
	if !found {
		return result
	}

	result.Found = true
	result.Actual = actual
	result.Matched = evaluateOperator(cond, actual)
	return result
}
