package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/guardrail/engine"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
	"mercator-hq/sentinel/pkg/server"
)

var rulesFlags struct {
	strict    bool
	maxRules  int
	maxDomain int
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and check rule tables",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint [file...]",
	Short: "Check rule table files",
	Long: `Check rule table files for structural errors and likely mistakes.

Errors make a table unusable: unknown actions or operators, duplicate rule ids,
rules in undeclared domains, invalid regular expressions. Warnings flag rules
that load but may never trigger, such as conditions on unknown fields.

Examples:
  # Lint one table
  sentinel rules lint rules.yaml

  # Treat warnings as errors in CI
  sentinel rules lint --strict rules/*.yaml -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lintRules(cmd.OutOrStdout(), args)
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Print a rule table",
	Long: `Print a rule table. Without a file the configured table, or the built-in
table, is shown. Text output summarizes domains; yaml prints the document.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return showRules(cmd.Context(), cmd.OutOrStdout(), path)
	},
}

var rulesFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the field paths conditions can reference",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range engine.FieldPaths() {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd, rulesShowCmd, rulesFieldsCmd)

	rulesLintCmd.Flags().BoolVar(&rulesFlags.strict, "strict", false, "treat warnings as errors")
	rulesLintCmd.Flags().IntVar(&rulesFlags.maxRules, "max-rules", 0, "fail when a table declares more rules (default: engine limit)")
	rulesLintCmd.Flags().IntVar(&rulesFlags.maxDomain, "max-domains", 0, "fail when a table declares more domains (default: engine limit)")
}

// lintReport is the result of linting one file.
type lintReport struct {
	File     string            `json:"file" yaml:"file"`
	Valid    bool              `json:"valid" yaml:"valid"`
	Version  uint64            `json:"version,omitempty" yaml:"version,omitempty"`
	Errors   []ruletable.Issue `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []ruletable.Issue `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type lintReports []lintReport

func (r lintReports) Header() []string {
	return []string{"file", "severity", "domain", "rule_id", "path", "message"}
}

func (r lintReports) Rows() [][]string {
	var rows [][]string
	for _, rep := range r {
		for _, issue := range append(append([]ruletable.Issue{}, rep.Errors...), rep.Warnings...) {
			rows = append(rows, []string{rep.File, string(issue.Severity), issue.Domain, issue.RuleID, issue.Path, issue.Message})
		}
	}
	return rows
}

func (r lintReports) String() string {
	var sb strings.Builder
	for i, rep := range r {
		if i > 0 {
			sb.WriteString("\n")
		}
		if rep.Valid && len(rep.Warnings) == 0 {
			fmt.Fprintf(&sb, "✓ %s: ok (version %d)", rep.File, rep.Version)
			continue
		}
		mark := "✓"
		if !rep.Valid {
			mark = "✗"
		}
		fmt.Fprintf(&sb, "%s %s: %d errors, %d warnings", mark, rep.File, len(rep.Errors), len(rep.Warnings))
		for _, issue := range rep.Errors {
			fmt.Fprintf(&sb, "\n  %s", issue)
		}
		for _, issue := range rep.Warnings {
			fmt.Fprintf(&sb, "\n  %s", issue)
		}
	}
	return sb.String()
}

func lintRules(out io.Writer, files []string) error {
	f, _, err := formatter()
	if err != nil {
		return err
	}

	limits := engine.DefaultEngineConfig()
	if rulesFlags.maxRules > 0 {
		limits.MaxRules = rulesFlags.maxRules
	}
	if rulesFlags.maxDomain > 0 {
		limits.MaxDomains = rulesFlags.maxDomain
	}

	reports := make(lintReports, 0, len(files))
	failed := 0
	for _, file := range files {
		rep, err := lintFile(file, limits)
		if err != nil {
			return cli.NewCommandError("rules lint", err)
		}
		if !rep.Valid || (rulesFlags.strict && len(rep.Warnings) > 0) {
			failed++
		}
		reports = append(reports, rep)
	}

	if err := f.FormatTo(out, reports); err != nil {
		return err
	}

	if failed > 0 {
		return cli.NewExitError(cli.ExitFailure, fmt.Errorf("%d of %d rule tables failed lint", failed, len(files)))
	}
	return nil
}

func lintFile(file string, limits *engine.EngineConfig) (lintReport, error) {
	rep := lintReport{File: file}

	data, err := os.ReadFile(file)
	if err != nil {
		return rep, err
	}

	table, err := ruletable.Decode(data, file)
	if err != nil {
		var verr *ruletable.ValidationError
		var perr *ruletable.ParseError
		switch {
		case errors.As(err, &verr):
			rep.Errors = verr.Issues
		case errors.As(err, &perr):
			rep.Errors = []ruletable.Issue{{Severity: ruletable.SeverityError, Message: perr.Error()}}
		default:
			return rep, err
		}
		return rep, nil
	}

	rep.Version = table.Version
	for _, issue := range ruletable.Lint(table, ruletable.WithFieldCheck(engine.ValidFieldPath)) {
		if issue.Severity == ruletable.SeverityError {
			rep.Errors = append(rep.Errors, issue)
		} else {
			rep.Warnings = append(rep.Warnings, issue)
		}
	}
	if n := len(table.Rules); n > limits.MaxRules {
		rep.Errors = append(rep.Errors, ruletable.Issue{Severity: ruletable.SeverityError, Path: "rules",
			Message: fmt.Sprintf("%d rules exceed the limit of %d", n, limits.MaxRules)})
	}
	if n := len(table.Domains); n > limits.MaxDomains {
		rep.Errors = append(rep.Errors, ruletable.Issue{Severity: ruletable.SeverityError, Path: "domains",
			Message: fmt.Sprintf("%d domains exceed the limit of %d", n, limits.MaxDomains)})
	}
	rep.Valid = len(rep.Errors) == 0
	return rep, nil
}

// tableSummary prints a rule table overview in text mode.
type tableSummary server.RulesResponse

func (s tableSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (version %d) from %s\n", s.Name, s.Version, s.Source)
	if s.Description != "" {
		fmt.Fprintf(&sb, "%s\n", s.Description)
	}
	fmt.Fprintf(&sb, "cross-cutting domain: %s\n", s.CrossCuttingDomain)
	fmt.Fprintf(&sb, "hard constraints: no autonomy under block=%t, under restrict=%t\n",
		s.HardConstraints.NoAutonomyUnderBlock, s.HardConstraints.NoAutonomyUnderRestrict)
	for _, d := range s.Domains {
		fmt.Fprintf(&sb, "  %-16s %3d rules (%d active), %d high / %d medium keywords\n",
			d.Name, d.Rules, d.ActiveRules, d.HighSignal, d.MediumSignal)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func showRules(ctx context.Context, out io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	f, format, err := formatter()
	if err != nil {
		return err
	}

	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Engine.RulesPath
	}

	table, err := ruleSource(path, nil).Load(ctx)
	if err != nil {
		return cli.NewCommandError("rules show", err)
	}

	switch format {
	case cli.FormatYAML:
		data, err := ruletable.Marshal(table)
		if err != nil {
			return cli.NewCommandError("rules show", err)
		}
		_, err = out.Write(data)
		return err
	case cli.FormatCSV:
		return f.FormatTo(out, ruleTable{t: table})
	case cli.FormatJSON:
		return f.FormatTo(out, server.SummarizeTable(table))
	default:
		return f.FormatTo(out, tableSummary(server.SummarizeTable(table)))
	}
}

// ruleTable lists the rules of a table as CSV.
type ruleTable struct{ t *ruletable.Table }

func (r ruleTable) Header() []string {
	return []string{"id", "domain", "action", "active", "conditions"}
}

func (r ruleTable) Rows() [][]string {
	rows := make([][]string, 0, len(r.t.Rules))
	for _, rule := range r.t.Rules {
		rows = append(rows, []string{
			rule.ID, rule.Domain, string(rule.Action), fmt.Sprint(rule.Active), fmt.Sprint(len(rule.Conditions)),
		})
	}
	return rows
}
