package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/evidence/query"
	"mercator-hq/sentinel/pkg/evidence/retention"
	"mercator-hq/sentinel/pkg/evidence/storage"
)

type evidenceOptions struct {
	db             string
	since          string
	until          string
	requestID      string
	sessionID      string
	tenantID       string
	finalAction    string
	primaryDomain  string
	domain         string
	ruleID         string
	ruleVersion    string
	autonomyDenied string
	sortBy         string
	sortOrder      string
	limit          int
	offset         int
	verify         bool

	retentionDays int
	maxRecords    int64
}

var evidenceFlags evidenceOptions

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Query and maintain the evidence store",
	Long: `Query, verify and prune the evidence records written for every evaluation.

Subcommands:
  query   - Query evidence records with filters
  get     - Print one record and check its hash
  prune   - Apply the retention policy once`,
}

var evidenceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query evidence records",
	Long: `Query evidence records. Times are RFC3339.

Examples:
  # Blocks in the last day window
  sentinel evidence query --since 2026-10-13T00:00:00Z --final-action block

  # Decisions that denied autonomy for one tenant, as CSV
  sentinel evidence query --tenant acme --autonomy-denied true -o csv

  # Check every returned record's hash
  sentinel evidence query --limit 1000 --verify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return queryEvidence(cmd.Context(), cmd.OutOrStdout())
	},
}

var evidenceGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one evidence record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getEvidence(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var evidencePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete records outside the retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pruneEvidence(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceQueryCmd, evidenceGetCmd, evidencePruneCmd)

	evidenceCmd.PersistentFlags().StringVar(&evidenceFlags.db, "db", "", "SQLite database path (default: evidence.sqlite.path)")

	f := evidenceQueryCmd.Flags()
	f.StringVar(&evidenceFlags.since, "since", "", "earliest evaluation time (RFC3339)")
	f.StringVar(&evidenceFlags.until, "until", "", "latest evaluation time (RFC3339)")
	f.StringVar(&evidenceFlags.requestID, "request", "", "filter by request id")
	f.StringVar(&evidenceFlags.sessionID, "session", "", "filter by session id")
	f.StringVar(&evidenceFlags.tenantID, "tenant", "", "filter by tenant id")
	f.StringVar(&evidenceFlags.finalAction, "final-action", "", "filter by final action (allow, redirect, restrict, block)")
	f.StringVar(&evidenceFlags.primaryDomain, "primary-domain", "", "filter by deciding domain")
	f.StringVar(&evidenceFlags.domain, "domain", "", "filter by any detected domain")
	f.StringVar(&evidenceFlags.ruleID, "rule", "", "filter by triggered rule id")
	f.StringVar(&evidenceFlags.ruleVersion, "rule-version", "", "filter by rule table version")
	f.StringVar(&evidenceFlags.autonomyDenied, "autonomy-denied", "", "filter by autonomy denial (true, false)")
	f.StringVar(&evidenceFlags.sortBy, "sort-by", "", "sort field: evaluated_at, recorded_at, rule_version, duration")
	f.StringVar(&evidenceFlags.sortOrder, "sort-order", "", "sort order: asc, desc")
	f.IntVar(&evidenceFlags.limit, "limit", 0, "max results (default: evidence.query.default_limit)")
	f.IntVar(&evidenceFlags.offset, "offset", 0, "pagination offset")
	f.BoolVar(&evidenceFlags.verify, "verify", false, "check record hashes and fail on mismatch")

	evidencePruneCmd.Flags().IntVar(&evidenceFlags.retentionDays, "days", -1, "override retention days (0 keeps records forever)")
	evidencePruneCmd.Flags().Int64Var(&evidenceFlags.maxRecords, "max-records", -1, "override maximum record count (0 is unlimited)")
}

// queryValues maps the query flags onto the parameter names the HTTP
// endpoint accepts so both share one parser.
func queryValues() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("start_time", evidenceFlags.since)
	set("end_time", evidenceFlags.until)
	set("request_id", evidenceFlags.requestID)
	set("session_id", evidenceFlags.sessionID)
	set("tenant_id", evidenceFlags.tenantID)
	set("final_action", evidenceFlags.finalAction)
	set("primary_domain", evidenceFlags.primaryDomain)
	set("domain", evidenceFlags.domain)
	set("rule_id", evidenceFlags.ruleID)
	set("rule_version", evidenceFlags.ruleVersion)
	set("autonomy_denied", evidenceFlags.autonomyDenied)
	set("sort_by", evidenceFlags.sortBy)
	set("sort_order", evidenceFlags.sortOrder)
	if evidenceFlags.limit > 0 {
		v.Set("limit", strconv.Itoa(evidenceFlags.limit))
	}
	if evidenceFlags.offset > 0 {
		v.Set("offset", strconv.Itoa(evidenceFlags.offset))
	}
	return v
}

func openEvidence() (*config.Config, evidence.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if evidenceFlags.db != "" {
		cfg.Evidence.Backend = "sqlite"
		cfg.Evidence.SQLite.Path = evidenceFlags.db
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(cfg.Evidence, logger)
	if err != nil {
		return nil, nil, cli.NewCommandError("evidence", err)
	}
	return cfg, store, nil
}

// recordList prints records as text or CSV.
type recordList []*evidence.Record

func (l recordList) Header() []string {
	return []string{"id", "evaluated_at", "request_id", "tenant_id", "final_action", "primary_domain", "triggered_rules", "autonomy_denied", "rule_version", "hash"}
}

func (l recordList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.ID,
			r.EvaluatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			r.RequestID,
			r.TenantID,
			r.FinalAction,
			r.PrimaryDomain,
			strings.Join(r.TriggeredRules, ";"),
			strconv.FormatBool(r.AutonomyDenied),
			strconv.FormatUint(r.RuleVersion, 10),
			r.Hash,
		})
	}
	return rows
}

func (l recordList) String() string {
	if len(l) == 0 {
		return "no records"
	}
	var sb strings.Builder
	for i, r := range l {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s  %s  %-8s", r.EvaluatedAt.Format("2006-01-02 15:04:05"), r.ID, r.FinalAction)
		if r.PrimaryDomain != "" {
			fmt.Fprintf(&sb, " domain=%s", r.PrimaryDomain)
		}
		if len(r.TriggeredRules) > 0 {
			fmt.Fprintf(&sb, " rules=%s", strings.Join(r.TriggeredRules, ","))
		}
		if r.AutonomyDenied {
			sb.WriteString(" autonomy-denied")
		}
	}
	return sb.String()
}

func queryEvidence(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	f, _, err := formatter()
	if err != nil {
		return err
	}

	q, err := query.FromValues(queryValues())
	if err != nil {
		return cli.NewConfigError("query", err.Error())
	}

	cfg, store, err := openEvidence()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := query.NewValidator(cfg.Evidence.Query).Prepare(q); err != nil {
		return cli.NewConfigError("query", err.Error())
	}

	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("evidence query", err)
	}

	if err := f.FormatTo(out, recordList(records)); err != nil {
		return err
	}

	if evidenceFlags.verify {
		var bad []string
		for _, r := range records {
			if !r.Verify() {
				bad = append(bad, r.ID)
			}
		}
		if len(bad) > 0 {
			return cli.NewExitError(cli.ExitFailure,
				fmt.Errorf("%d records failed hash verification: %s", len(bad), strings.Join(bad, ", ")))
		}
	}
	return nil
}

func getEvidence(ctx context.Context, out io.Writer, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	f, format, err := formatter()
	if err != nil {
		return err
	}

	_, store, err := openEvidence()
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.Get(ctx, id)
	if err != nil {
		return cli.NewCommandError("evidence get", err)
	}

	if format == cli.FormatText || format == cli.FormatCSV {
		err = f.FormatTo(out, recordList{record})
	} else {
		err = f.FormatTo(out, record)
	}
	if err != nil {
		return err
	}

	if !record.Verify() {
		return cli.NewExitError(cli.ExitFailure, fmt.Errorf("record %s failed hash verification", id))
	}
	return nil
}

func pruneEvidence(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, store, err := openEvidence()
	if err != nil {
		return err
	}
	defer store.Close()

	rc := retention.FromConfig(cfg.Evidence.Retention)
	if evidenceFlags.retentionDays >= 0 {
		rc.RetentionDays = evidenceFlags.retentionDays
	}
	if evidenceFlags.maxRecords >= 0 {
		rc.MaxRecords = evidenceFlags.maxRecords
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	pruned, err := retention.NewPruner(store, rc, logger).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("evidence prune", err)
	}

	fmt.Fprintf(out, "✓ Pruned %d records (retention %d days, max %d records)\n", pruned, rc.RetentionDays, rc.MaxRecords)
	return nil
}
