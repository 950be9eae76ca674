package ruletable

import (
	"strings"
	"testing"

	"mercator-hq/sentinel/pkg/guardrail"
)

func lintTable() *Table {
	return &Table{
		Version:            1,
		CrossCuttingDomain: "system",
		Domains: []*Domain{
			{Name: "medical"},
			{Name: "system"},
		},
		Rules: []*guardrail.Rule{
			{
				ID: "bad-regex", Domain: "medical", Action: guardrail.ActionBlock, Active: true,
				Conditions: []guardrail.Condition{{Field: "intent.raw_text", Operator: guardrail.OperatorMatches, Value: "([oops"}},
			},
			{
				ID: "scalar-in", Domain: "medical", Action: guardrail.ActionRedirect, Active: true,
				Conditions: []guardrail.Condition{{Field: "user.role", Operator: guardrail.OperatorIn, Value: "admin"}},
			},
			{
				ID: "text-gt", Domain: "medical", Action: guardrail.ActionRedirect, Active: true,
				Conditions: []guardrail.Condition{{Field: "emotion.sentiment", Operator: guardrail.OperatorGreaterThan, Value: "high"}},
			},
			{
				ID: "unknown-field", Domain: "system", Action: guardrail.ActionBlock, Active: true,
				Conditions: []guardrail.Condition{{Field: "intent.mood", Operator: guardrail.OperatorEqual, Value: "sad"}},
			},
			{ID: "always", Domain: "system", Action: guardrail.ActionRestrict, Active: true},
		},
	}
}

func TestLint_Warnings(t *testing.T) {
	known := func(path string) bool { return path != "intent.mood" }
	issues := Lint(lintTable(), WithFieldCheck(known))

	want := map[string]string{
		"bad-regex":     "pattern never matches",
		"scalar-in":     "requires a list value",
		"text-gt":       "requires a numeric value",
		"unknown-field": `unknown field "intent.mood"`,
		"always":        "always triggers",
	}

	found := make(map[string]bool)
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			t.Errorf("unexpected error issue: %s", issue)
			continue
		}
		if msg, ok := want[issue.RuleID]; ok && strings.Contains(issue.Message, msg) {
			found[issue.RuleID] = true
		}
	}
	for id, msg := range want {
		if !found[id] {
			t.Errorf("missing warning for %s containing %q", id, msg)
		}
	}

	// medical has no keywords
	var domainWarning bool
	for _, issue := range issues {
		if issue.Domain == "medical" && issue.RuleID == "" {
			domainWarning = true
		}
	}
	if !domainWarning {
		t.Error("missing warning for undetectable domain")
	}

	if err := Validate(lintTable()); err != nil {
		t.Errorf("Validate() = %v, want nil for warnings only", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
		want   string
	}{
		{"no domains", func(tb *Table) { tb.Domains = nil; tb.Rules = nil }, "at least one domain"},
		{"duplicate domain", func(tb *Table) { tb.Domains = append(tb.Domains, &Domain{Name: "medical"}) }, "duplicate domain"},
		{"undeclared rule domain", func(tb *Table) { tb.Rules[0].Domain = "legal" }, `rule domain "legal" is not declared`},
		{"empty rule id", func(tb *Table) { tb.Rules[0].ID = "" }, "rule id is required"},
		{"invalid action", func(tb *Table) { tb.Rules[0].Action = "quarantine" }, `unknown action "quarantine"`},
		{"invalid operator", func(tb *Table) { tb.Rules[1].Conditions[0].Operator = "like" }, `unknown operator "like"`},
		{"empty field", func(tb *Table) { tb.Rules[1].Conditions[0].Field = "" }, "field is required"},
		{"empty cross-cutting", func(tb *Table) { tb.CrossCuttingDomain = "" }, "cross-cutting domain is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := lintTable()
			tt.mutate(tb)

			err := Validate(tb)
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}
