package ruletable

import (
	"errors"
	"strings"
	"testing"

	"mercator-hq/sentinel/pkg/guardrail"
)

const minimalTable = `
version: 7
domains:
  - name: finance
    keywords:
      high: [wire transfer]
      medium: [bank, loan]
    defaults:
      restrict:
        message: Confirm the transfer.
        alternatives: [Confirm manually]
    rules:
      - id: fin-wire
        action: restrict
        conditions:
          - field: routing.recommended_route
            operator: EQ
            value: payments.wire
      - id: fin-disabled
        action: block
        active: false
  - name: system
    rules:
      - id: sys-autonomy
        action: block
        conditions:
          - field: autonomy.requested
            operator: eq
            value: true
`

func TestParse_Minimal(t *testing.T) {
	tbl, err := Parse([]byte(minimalTable), "minimal.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if tbl.Version != 7 {
		t.Errorf("Version = %d, want 7", tbl.Version)
	}
	if tbl.CrossCuttingDomain != DefaultCrossCuttingDomain {
		t.Errorf("CrossCuttingDomain = %q, want %q", tbl.CrossCuttingDomain, DefaultCrossCuttingDomain)
	}
	if tbl.HardConstraints != guardrail.DefaultHardConstraints() {
		t.Errorf("HardConstraints = %+v, want defaults", tbl.HardConstraints)
	}
	if got := tbl.DomainNames(); strings.Join(got, ",") != "finance,system" {
		t.Errorf("DomainNames() = %v", got)
	}

	rules := tbl.RulesFor("finance")
	if len(rules) != 2 {
		t.Fatalf("RulesFor(finance) = %d rules, want 2", len(rules))
	}
	if rules[0].Conditions[0].Operator != guardrail.OperatorEqual {
		t.Errorf("operator = %q, want eq", rules[0].Conditions[0].Operator)
	}
	if !rules[0].Active || rules[1].Active {
		t.Errorf("Active = %v, %v, want true, false", rules[0].Active, rules[1].Active)
	}
	if rules[0].Domain != "finance" {
		t.Errorf("Domain = %q, want finance", rules[0].Domain)
	}
	if tbl.ActiveRuleCount() != 2 {
		t.Errorf("ActiveRuleCount() = %d, want 2", tbl.ActiveRuleCount())
	}

	def, ok := tbl.Default("finance", guardrail.ActionRestrict)
	if !ok || def.Message != "Confirm the transfer." {
		t.Errorf("Default(finance, restrict) = %+v, %v", def, ok)
	}
	if _, ok := tbl.Default("finance", guardrail.ActionBlock); ok {
		t.Error("Default(finance, block) should not exist")
	}
}

func TestParse_HardConstraintsOverride(t *testing.T) {
	doc := `
version: 1
hard_constraints:
  no_autonomy_under_restrict: false
domains:
  - name: system
`
	tbl, err := Parse([]byte(doc), "hc.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !tbl.HardConstraints.NoAutonomyUnderBlock {
		t.Error("NoAutonomyUnderBlock should default to true")
	}
	if tbl.HardConstraints.NoAutonomyUnderRestrict {
		t.Error("NoAutonomyUnderRestrict should be false")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantParse bool
		wantMsg   string
	}{
		{
			name:      "empty document",
			doc:       "",
			wantParse: true,
			wantMsg:   "empty document",
		},
		{
			name:      "unknown field",
			doc:       "version: 1\ndomainz: []\n",
			wantParse: true,
			wantMsg:   "invalid YAML",
		},
		{
			name: "unknown operator",
			doc: `
version: 1
domains:
  - name: system
    rules:
      - id: r1
        action: block
        conditions:
          - field: intent.primary
            operator: approximately
            value: x
`,
			wantMsg: `unknown operator "approximately"`,
		},
		{
			name: "unknown action",
			doc: `
version: 1
domains:
  - name: system
    rules:
      - id: r1
        action: quarantine
`,
			wantMsg: `unknown action "quarantine"`,
		},
		{
			name:    "zero version",
			doc:     "domains:\n  - name: system\n",
			wantMsg: "version must be greater than zero",
		},
		{
			name:    "missing cross-cutting domain",
			doc:     "version: 1\ncross_cutting_domain: global\ndomains:\n  - name: system\n",
			wantMsg: `cross-cutting domain "global" is not declared`,
		},
		{
			name: "duplicate rule id",
			doc: `
version: 1
domains:
  - name: system
    rules:
      - id: r1
        action: block
      - id: r1
        action: allow
`,
			wantMsg: "duplicate rule id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "test.yaml")
			if err == nil {
				t.Fatal("Parse() expected error")
			}

			var pe *ParseError
			var ve *ValidationError
			if tt.wantParse && !errors.As(err, &pe) {
				t.Errorf("error = %T, want *ParseError", err)
			}
			if !tt.wantParse && !errors.As(err, &ve) {
				t.Errorf("error = %T, want *ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestMarshal_Reparse(t *testing.T) {
	tbl, err := Parse([]byte(minimalTable), "minimal.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	data, err := Marshal(tbl)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	again, err := Parse(data, "marshalled.yaml")
	if err != nil {
		t.Fatalf("Parse(Marshal()) error = %v\n%s", err, data)
	}
	if again.Version != tbl.Version || len(again.Rules) != len(tbl.Rules) {
		t.Errorf("reparsed table = v%d with %d rules, want v%d with %d", again.Version, len(again.Rules), tbl.Version, len(tbl.Rules))
	}
	if again.RulesFor("finance")[1].Active {
		t.Error("inactive rule became active after round trip")
	}
}
