package engine

import (
	"strings"

	"mercator-hq/sentinel/pkg/guardrail"
)

// evaluateOperator applies the condition's operator to the resolved value.
// Type mismatches never match, negated operators included.
func evaluateOperator(cond *guardrail.Condition, actual any) bool {
	fold := !cond.CaseSensitive
	expected := cond.Value

	switch cond.Operator {
	case guardrail.OperatorEqual:
		eq, ok := evaluateEqual(actual, expected, fold)
		return ok && eq

	case guardrail.OperatorNotEqual:
		eq, ok := evaluateEqual(actual, expected, fold)
		return ok && !eq

	case guardrail.OperatorContains:
		found, ok := evaluateContains(actual, expected, fold)
		return ok && found

	case guardrail.OperatorNotContains:
		found, ok := evaluateContains(actual, expected, fold)
		return ok && !found

	case guardrail.OperatorGreaterThan:
		a, b, ok := toNumeric(actual, expected)
		return ok && a > b

	case guardrail.OperatorLessThan:
		a, b, ok := toNumeric(actual, expected)
		return ok && a < b

	case guardrail.OperatorGreaterEq:
		a, b, ok := toNumeric(actual, expected)
		return ok && a >= b

	case guardrail.OperatorLessEq:
		a, b, ok := toNumeric(actual, expected)
		return ok && a <= b

	case guardrail.OperatorMatches:
		return evaluateMatches(cond, actual)

	case guardrail.OperatorIn:
		found, ok := evaluateIn(actual, expected, fold)
		return ok && found

	case guardrail.OperatorNotIn:
		found, ok := evaluateIn(actual, expected, fold)
		return ok && !found

	default:
		return false
	}
}

// evaluateEqual compares two scalars. ok is false when they are not of a
// comparable kind.
func evaluateEqual(actual, expected any, fold bool) (equal, ok bool) {
	if a, b, numeric := toNumeric(actual, expected); numeric {
		return a == b, true
	}

	switch a := actual.(type) {
	case string:
		b, isString := expected.(string)
		if !isString {
			return false, false
		}
		return stringsEqual(a, b, fold), true

	case bool:
		b, isBool := expected.(bool)
		if !isBool {
			return false, false
		}
		return a == b, true
	}

	return false, false
}

// evaluateContains tests substring containment on strings and membership
// on sequences.
func evaluateContains(actual, expected any, fold bool) (found, ok bool) {
	if a, isString := actual.(string); isString {
		b, isString := expected.(string)
		if !isString {
			return false, false
		}
		if fold {
			return strings.Contains(strings.ToLower(a), strings.ToLower(b)), true
		}
		return strings.Contains(a, b), true
	}

	seq, isSeq := toSequence(actual)
	if !isSeq || !isScalar(expected) {
		return false, false
	}
	return containsElement(seq, expected, fold), true
}

func evaluateMatches(cond *guardrail.Condition, actual any) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	re, err := cond.Pattern()
	if err != nil || re == nil {
		return false
	}
	return re.MatchString(s)
}

// evaluateIn tests membership of a scalar in the expected sequence.
func evaluateIn(actual, expected any, fold bool) (found, ok bool) {
	seq, isSeq := toSequence(expected)
	if !isSeq || !isScalar(actual) {
		return false, false
	}
	return containsElement(seq, actual, fold), true
}

func containsElement(seq []any, elem any, fold bool) bool {
	for _, item := range seq {
		if eq, ok := evaluateEqual(item, elem, fold); ok && eq {
			return true
		}
	}
	return false
}

func stringsEqual(a, b string, fold bool) bool {
	if fold {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// toSequence normalizes the slice kinds produced by YAML, JSON and the
// field accessors.
func toSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := convertToFloat64(v)
	return ok
}

func toNumeric(actual, expected any) (float64, float64, bool) {
	a, ok := convertToFloat64(actual)
	if !ok {
		return 0, 0, false
	}
	b, ok := convertToFloat64(expected)
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}

// convertToFloat64 converts any Go numeric type to float64.
func convertToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
