package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
)

func TestLintRules(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		strict   bool
		wantExit int
		wantOut  string
	}{
		{
			name:    "valid table",
			files:   []string{"testdata/valid-rules.yaml"},
			wantOut: "✓ testdata/valid-rules.yaml: ok (version 3)",
		},
		{
			name:    "warnings pass",
			files:   []string{"testdata/warning-rules.yaml"},
			wantOut: `unknown field "intent.raw_txt" never matches`,
		},
		{
			name:     "warnings fail in strict mode",
			files:    []string{"testdata/warning-rules.yaml"},
			strict:   true,
			wantExit: cli.ExitFailure,
		},
		{
			name:     "invalid action",
			files:    []string{"testdata/invalid-rules.yaml", "testdata/valid-rules.yaml"},
			wantExit: cli.ExitFailure,
			wantOut:  `unknown action "deny"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			rulesFlags.strict = tt.strict

			var buf bytes.Buffer
			err := lintRules(&buf, tt.files)
			if got := cli.ExitCode(err); got != tt.wantExit {
				t.Fatalf("exit code = %d, want %d (err = %v)", got, tt.wantExit, err)
			}
			if tt.wantOut != "" && !strings.Contains(buf.String(), tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, buf.String())
			}
		})
	}
}

func TestLintRulesLimits(t *testing.T) {
	resetFlags(t)
	rulesFlags.maxRules = 1
	rulesFlags.maxDomain = 1

	var buf bytes.Buffer
	err := lintRules(&buf, []string{"testdata/valid-rules.yaml"})
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Fatalf("expected lint failure, got %v", err)
	}
	if !strings.Contains(buf.String(), "2 domains exceed the limit of 1") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestLintRulesJSON(t *testing.T) {
	resetFlags(t)
	outputFormat = "json"

	var buf bytes.Buffer
	_ = lintRules(&buf, []string{"testdata/invalid-rules.yaml", "testdata/warning-rules.yaml"})

	var reports []lintReport
	if err := json.Unmarshal(buf.Bytes(), &reports); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, buf.String())
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	if reports[0].Valid || len(reports[0].Errors) == 0 {
		t.Errorf("invalid table reported as valid: %+v", reports[0])
	}
	if !reports[1].Valid || len(reports[1].Warnings) != 1 || reports[1].Warnings[0].RuleID != "system-typo" {
		t.Errorf("warning report = %+v", reports[1])
	}
}

func TestLintRulesMissingFile(t *testing.T) {
	resetFlags(t)

	err := lintRules(&bytes.Buffer{}, []string{"testdata/nonexistent.yaml"})
	var cmdErr *cli.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want CommandError", err)
	}
}

func TestShowRules(t *testing.T) {
	tests := []struct {
		format string
		path   string
		check  func(t *testing.T, out string)
	}{
		{
			format: "text",
			path:   "testdata/valid-rules.yaml",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "ci (version 3)") || !strings.Contains(out, "financial") {
					t.Errorf("output = %s", out)
				}
			},
		},
		{
			format: "yaml",
			path:   "testdata/valid-rules.yaml",
			check: func(t *testing.T, out string) {
				tbl, err := ruletable.Parse([]byte(out), "roundtrip")
				if err != nil {
					t.Fatalf("yaml output does not parse: %v", err)
				}
				if tbl.Version != 3 || len(tbl.Rules) != 1 {
					t.Errorf("version = %d, rules = %d", tbl.Version, len(tbl.Rules))
				}
			},
		},
		{
			format: "json",
			path:   "",
			check: func(t *testing.T, out string) {
				var summary map[string]any
				if err := json.Unmarshal([]byte(out), &summary); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if summary["source"] != "builtin" {
					t.Errorf("source = %v, want builtin", summary["source"])
				}
			},
		},
		{
			format: "csv",
			path:   "testdata/valid-rules.yaml",
			check: func(t *testing.T, out string) {
				want := "id,domain,action,active,conditions\nfinancial-autonomous-transfer,financial,restrict,true,1\n"
				if out != want {
					t.Errorf("output = %q, want %q", out, want)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resetFlags(t)
			outputFormat = tt.format

			var buf bytes.Buffer
			if err := showRules(context.Background(), &buf, tt.path); err != nil {
				t.Fatalf("showRules() error = %v", err)
			}
			tt.check(t, buf.String())
		})
	}
}
