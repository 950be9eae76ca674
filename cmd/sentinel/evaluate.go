package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/evidence/recorder"
	"mercator-hq/sentinel/pkg/evidence/storage"
	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/engine"
	"mercator-hq/sentinel/pkg/telemetry/events"
)

// maxInputLine bounds one line of batch input.
const maxInputLine = 4 << 20

type evaluateOptions struct {
	file     string
	rules    string
	batch    bool
	trace    bool
	record   bool
	progress bool
	failOn   []string
}

var evaluateFlags evaluateOptions

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate input bundles against the rule table",
	Long: `Evaluate one input bundle, or a file of newline-delimited bundles with
--batch, and print the decisions.

Examples:
  # Evaluate a bundle from stdin with the built-in rules
  echo '{"intent":{"raw_text":"I want to transfer money"}}' | sentinel evaluate

  # Evaluate a batch against a rule table and fail CI on blocks
  sentinel evaluate --batch --file cases.jsonl --rules rules.yaml --fail-on block

  # Record the decisions as evidence
  sentinel evaluate --file bundle.json --record -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if evaluateFlags.file != "" && evaluateFlags.file != "-" {
			f, err := os.Open(evaluateFlags.file)
			if err != nil {
				return cli.NewCommandError("evaluate", err)
			}
			defer f.Close()
			in = f
		}
		return evaluateInputs(cmd.Context(), in, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.file, "file", "f", "-", "input bundle file (- for stdin)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.rules, "rules", "", "rule table file (default: engine.rules_path or built-in)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.batch, "batch", false, "input is newline-delimited JSON")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.trace, "trace", false, "include per-rule traces")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.record, "record", false, "store evidence records in the configured evidence store")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.progress, "progress", false, "report batch progress on stderr")
	evaluateCmd.Flags().StringSliceVar(&evaluateFlags.failOn, "fail-on", nil, "exit 1 when any final action is in this list")
}

// decision is the printed form of one evaluation.
type decision struct {
	*guardrail.Evaluation `yaml:",inline"`
	AutonomyPermitted bool `json:"autonomy_permitted" yaml:"autonomy_permitted"`
	AutonomyDenied    bool `json:"autonomy_denied" yaml:"autonomy_denied"`
}

func (d decision) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", strings.ToUpper(string(d.FinalAction)))
	if d.PrimaryDomain != "" {
		fmt.Fprintf(&sb, " domain=%s", d.PrimaryDomain)
	}
	if d.RequestID != "" {
		fmt.Fprintf(&sb, " request=%s", d.RequestID)
	}
	fmt.Fprintf(&sb, " detected=%s", strings.Join(d.DetectedDomains, ","))
	if rules := d.TriggeredRules(); len(rules) > 0 {
		fmt.Fprintf(&sb, " rules=%s", strings.Join(rules, ","))
	}
	fmt.Fprintf(&sb, " autonomy=%t version=%d", d.AutonomyPermitted, d.RuleVersion)
	if d.UserMessage != "" {
		fmt.Fprintf(&sb, "\n  %s", d.UserMessage)
	}
	for _, alt := range d.Alternatives {
		fmt.Fprintf(&sb, "\n  - %s", alt)
	}
	return sb.String()
}

// decisions is a batch of decisions printable as CSV.
type decisions []decision

func (d decisions) Header() []string {
	return []string{"request_id", "final_action", "primary_domain", "detected_domains", "triggered_rules", "autonomy_permitted", "rule_version", "input_hash"}
}

func (d decisions) Rows() [][]string {
	rows := make([][]string, 0, len(d))
	for _, e := range d {
		rows = append(rows, []string{
			e.RequestID,
			string(e.FinalAction),
			e.PrimaryDomain,
			strings.Join(e.DetectedDomains, ";"),
			strings.Join(e.TriggeredRules(), ";"),
			fmt.Sprint(e.AutonomyPermitted),
			fmt.Sprint(e.RuleVersion),
			e.InputHash,
		})
	}
	return rows
}

func evaluateInputs(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for _, a := range evaluateFlags.failOn {
		if !guardrail.Action(a).Valid() {
			return cli.NewConfigError("fail-on", fmt.Sprintf("unknown action %q", a))
		}
	}

	f, format, err := formatter()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	rulesPath := cfg.Engine.RulesPath
	if evaluateFlags.rules != "" {
		rulesPath = evaluateFlags.rules
	}

	var rec *recorder.Recorder
	if evaluateFlags.record {
		store, err := storage.New(cfg.Evidence, logger)
		if err != nil {
			return cli.NewCommandError("evaluate", err)
		}
		defer store.Close()
		rec = recorder.New(store, recorder.FromConfig(cfg.Evidence.Recorder), logger, nil)
		defer rec.Close(context.WithoutCancel(ctx))
	}

	engineCfg := engine.FromConfig(cfg.Engine).WithTrace(evaluateFlags.trace || cfg.Engine.EnableTrace)
	eng, err := engine.NewEngine(engineCfg, ruleSource(rulesPath, logger), logger)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	inputs, err := readInputs(in, evaluateFlags.batch)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	var progress *cli.BatchProgress
	if evaluateFlags.progress && evaluateFlags.batch {
		progress = cli.NewProgressReporter(errOut, "eval/s")
		progress.Start(int64(len(inputs)))
	}

	var (
		results decisions
		matched int
	)
	for i, input := range inputs {
		eval, err := eng.Evaluate(ctx, input)
		if err != nil {
			if progress != nil {
				progress.Error(err)
			}
			return cli.NewCommandError("evaluate", fmt.Errorf("input %d: %w", i+1, err))
		}

		if rec != nil {
			if _, err := rec.Record(ctx, events.NewEvaluationEvent(eval, input.Autonomy.Requested)); err != nil {
				return cli.NewCommandError("evaluate", err)
			}
		}

		d := decision{
			Evaluation:        eval,
			AutonomyPermitted: eval.IsAutonomyPermitted(),
			AutonomyDenied:    eval.AutonomyDenied(input.Autonomy.Requested),
		}
		if slices.Contains(evaluateFlags.failOn, string(eval.FinalAction)) {
			matched++
		}

		switch {
		case format == cli.FormatCSV:
			results = append(results, d)
		case format == cli.FormatJSON && evaluateFlags.batch:
			// One decision per line keeps batch output streamable.
			if err := (&cli.JSONFormatter{}).FormatTo(out, d); err != nil {
				return err
			}
		default:
			if err := f.FormatTo(out, d); err != nil {
				return err
			}
		}

		if progress != nil {
			progress.Record(string(eval.FinalAction))
		}
	}
	if progress != nil {
		progress.Finish()
	}

	if format == cli.FormatCSV {
		if err := f.FormatTo(out, results); err != nil {
			return err
		}
	}

	if matched > 0 {
		return cli.NewExitError(cli.ExitFailure,
			fmt.Errorf("%d of %d evaluations ended in %s", matched, len(inputs), strings.Join(evaluateFlags.failOn, " or ")))
	}
	return nil
}

// readInputs decodes one bundle, or one bundle per non-empty line in batch
// mode.
func readInputs(r io.Reader, batch bool) ([]*guardrail.Input, error) {
	if !batch {
		var in guardrail.Input
		if err := json.NewDecoder(r).Decode(&in); err != nil {
			return nil, fmt.Errorf("invalid input bundle: %w", err)
		}
		return []*guardrail.Input{&in}, nil
	}

	var inputs []*guardrail.Input
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxInputLine)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var in guardrail.Input
		if err := json.Unmarshal([]byte(text), &in); err != nil {
			return nil, fmt.Errorf("invalid input bundle on line %d: %w", line, err)
		}
		inputs = append(inputs, &in)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return inputs, nil
}
