/*
Package cli provides helpers shared by the sentinel commands.

Output Formatting:

Command results can be printed as text, JSON, YAML or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, evaluation); err != nil {
		return err
	}

CSV output needs values implementing Tabular.

Progress Reporting:

Batch evaluation reports progress on stderr with a tally per outcome:

	progress := cli.NewProgressReporter(os.Stderr, "eval/s")
	progress.Start(int64(len(inputs)))
	for _, in := range inputs {
		eval, _ := eng.Evaluate(ctx, in)
		progress.Record(string(eval.FinalAction))
	}
	progress.Finish() // ✓ 3 evaluated in 2ms: allow=1 block=1 restrict=1

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Exit Codes:

ExitCode maps an error returned by a command to the process exit status.
*/
package cli
