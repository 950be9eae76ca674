package ruletable

import (
	"fmt"
	"strings"

	"mercator-hq/sentinel/pkg/guardrail"
)

// LintOption configures Lint.
type LintOption func(*linter)

// WithFieldCheck reports conditions whose field path is not known to the
// evaluator. Unknown paths never resolve, so such conditions never match.
func WithFieldCheck(known func(path string) bool) LintOption {
	return func(l *linter) {
		l.knownField = known
	}
}

type linter struct {
	knownField func(string) bool
	issues     []Issue
}

func (l *linter) add(sev Severity, domain, ruleID, path, format string, args ...any) {
	l.issues = append(l.issues, Issue{
		Severity: sev,
		Domain:   domain,
		RuleID:   ruleID,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Validate checks a table for structural errors. It returns a
// *ValidationError listing every error-severity issue, or nil.
func Validate(t *Table) error {
	var errs []Issue
	for _, issue := range Lint(t) {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Source: t.Source, Issues: errs}
	}
	return nil
}

// Lint returns every error and warning found in a table, in table order.
func Lint(t *Table, opts ...LintOption) []Issue {
	l := &linter{}
	for _, opt := range opts {
		opt(l)
	}

	if t.Version == 0 {
		l.add(SeverityError, "", "", "version", "version must be greater than zero")
	}
	if len(t.Domains) == 0 {
		l.add(SeverityError, "", "", "domains", "at least one domain is required")
	}

	domains := make(map[string]bool, len(t.Domains))
	for i, d := range t.Domains {
		path := fmt.Sprintf("domains[%d]", i)
		switch {
		case strings.TrimSpace(d.Name) == "":
			l.add(SeverityError, "", "", path+".name", "domain name is required")
			continue
		case domains[d.Name]:
			l.add(SeverityError, d.Name, "", path+".name", "duplicate domain")
			continue
		}
		domains[d.Name] = true

		if d.Name != t.CrossCuttingDomain && len(d.HighSignal) == 0 && len(d.MediumSignal) == 0 {
			l.add(SeverityWarning, d.Name, "", path+".keywords", "domain has no keywords and is never detected")
		}
		for action := range d.Defaults {
			if !action.Valid() {
				l.add(SeverityError, d.Name, "", path+".defaults", "unknown action %q", action)
			}
		}
	}

	if t.CrossCuttingDomain == "" {
		l.add(SeverityError, "", "", "cross_cutting_domain", "cross-cutting domain is required")
	} else if !domains[t.CrossCuttingDomain] {
		l.add(SeverityError, "", "", "cross_cutting_domain", "cross-cutting domain %q is not declared", t.CrossCuttingDomain)
	}

	ids := make(map[string]bool, len(t.Rules))
	for i, r := range t.Rules {
		path := fmt.Sprintf("rules[%d]", i)

		if strings.TrimSpace(r.ID) == "" {
			l.add(SeverityError, r.Domain, "", path+".id", "rule id is required")
		} else if ids[r.ID] {
			l.add(SeverityError, r.Domain, r.ID, path+".id", "duplicate rule id")
		}
		ids[r.ID] = true

		if !domains[r.Domain] {
			l.add(SeverityError, r.Domain, r.ID, path+".domain", "rule domain %q is not declared", r.Domain)
		}
		if !r.Action.Valid() {
			l.add(SeverityError, r.Domain, r.ID, path+".action", "unknown action %q", r.Action)
		}
		if len(r.Conditions) == 0 && r.Active {
			l.add(SeverityWarning, r.Domain, r.ID, path+".conditions", "rule has no conditions and always triggers")
		}

		for ci := range r.Conditions {
			l.lintCondition(r, &r.Conditions[ci], fmt.Sprintf("%s.conditions[%d]", path, ci))
		}
	}

	return l.issues
}

func (l *linter) lintCondition(r *guardrail.Rule, c *guardrail.Condition, path string) {
	if strings.TrimSpace(c.Field) == "" {
		l.add(SeverityError, r.Domain, r.ID, path+".field", "field is required")
	} else if l.knownField != nil && !l.knownField(c.Field) {
		l.add(SeverityWarning, r.Domain, r.ID, path+".field", "unknown field %q never matches", c.Field)
	}

	if !c.Operator.Valid() {
		l.add(SeverityError, r.Domain, r.ID, path+".operator", "unknown operator %q", c.Operator)
		return
	}

	switch c.Operator {
	case guardrail.OperatorMatches:
		if _, err := c.Pattern(); err != nil {
			l.add(SeverityWarning, r.Domain, r.ID, path+".value", "pattern never matches: %v", err)
		}
	case guardrail.OperatorIn, guardrail.OperatorNotIn:
		if !isSequence(c.Value) {
			l.add(SeverityWarning, r.Domain, r.ID, path+".value", "%s requires a list value, got %T", c.Operator, c.Value)
		}
	case guardrail.OperatorGreaterThan, guardrail.OperatorLessThan,
		guardrail.OperatorGreaterEq, guardrail.OperatorLessEq:
		if !isNumber(c.Value) {
			l.add(SeverityWarning, r.Domain, r.ID, path+".value", "%s requires a numeric value, got %T", c.Operator, c.Value)
		}
	}
}

func isSequence(v any) bool {
	switch v.(type) {
	case []any, []string, []float64, []int:
		return true
	default:
		return false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
