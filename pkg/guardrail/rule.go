package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

// Operator is a comparison operator used by a Condition.
type Operator string

const (
	OperatorEqual       Operator = "eq"
	OperatorNotEqual    Operator = "neq"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorGreaterThan Operator = "gt"
	OperatorLessThan    Operator = "lt"
	OperatorGreaterEq   Operator = "gte"
	OperatorLessEq      Operator = "lte"
	OperatorMatches     Operator = "matches"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OperatorEqual, OperatorNotEqual,
	OperatorContains, OperatorNotContains,
	OperatorGreaterThan, OperatorLessThan, OperatorGreaterEq, OperatorLessEq,
	OperatorMatches,
	OperatorIn, OperatorNotIn,
}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// ParseOperator converts a string to an Operator, rejecting unknown names.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// Condition is a single predicate over one field of the input or the
// evaluation context.
type Condition struct {
	// Field is a dot-separated path such as "intent.raw_text".
	Field string `json:"field" yaml:"field"`

	// Operator is the comparison to apply.
	Operator Operator `json:"operator" yaml:"operator"`

	// Value is the expected value. Numbers are float64, sequences are []any.
	Value any `json:"value" yaml:"value"`

	// CaseSensitive disables case folding for string comparisons.
	CaseSensitive bool `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`

	pattern    *regexp.Regexp
	patternErr error
}

// Compile precompiles the regular expression of a matches condition.
// A malformed pattern is remembered and reported by Pattern; it is not an
// error here because such a condition simply never matches.
func (c *Condition) Compile() {
	if c.Operator != OperatorMatches {
		return
	}
	expr, ok := c.Value.(string)
	if !ok {
		c.patternErr = fmt.Errorf("matches operator requires a string pattern, got %T", c.Value)
		return
	}
	if !c.CaseSensitive {
		expr = "(?i)" + expr
	}
	c.pattern, c.patternErr = regexp.Compile(expr)
}

// Pattern returns the compiled pattern of a matches condition, compiling it
// on first use if Compile was never called.
func (c *Condition) Pattern() (*regexp.Regexp, error) {
	if c.pattern == nil && c.patternErr == nil {
		cc := *c
		cc.Compile()
		return cc.pattern, cc.patternErr
	}
	return c.pattern, c.patternErr
}

// String renders the condition for logs and traces.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Rule is a domain-scoped conjunction of conditions mapped to an action.
type Rule struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`

	// Conditions must all match for the rule to trigger. A rule without
	// conditions triggers whenever its domain is evaluated.
	Conditions []Condition `json:"conditions"`

	Action Action `json:"action"`

	// Explanation is a message template. {domain}, {action} and {rule_id}
	// are substituted when the message is rendered.
	Explanation string `json:"explanation,omitempty"`

	// Alternatives are suggested different actions to offer the user.
	Alternatives []string `json:"alternatives,omitempty"`

	Active bool `json:"active"`
}

// RenderExplanation substitutes placeholders in the explanation template.
func (r *Rule) RenderExplanation() string {
	if r.Explanation == "" {
		return ""
	}
	return strings.NewReplacer(
		"{domain}", r.Domain,
		"{action}", string(r.Action),
		"{rule_id}", r.ID,
	).Replace(r.Explanation)
}
