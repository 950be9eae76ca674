package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/evidence/recorder"
	"mercator-hq/sentinel/pkg/evidence/retention"
	"mercator-hq/sentinel/pkg/evidence/storage"
	"mercator-hq/sentinel/pkg/guardrail/engine"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
	"mercator-hq/sentinel/pkg/server"
	"mercator-hq/sentinel/pkg/telemetry/events"
	"mercator-hq/sentinel/pkg/telemetry/health"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

// closeTimeout bounds draining the event and evidence queues on exit.
const closeTimeout = 10 * time.Second

var runFlags struct {
	listenAddress string
	rulesPath     string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the guardrail server",
	Long: `Start the guardrail HTTP server with the specified configuration.

The server loads the rule table, evaluates input bundles posted to
/v1/evaluate, records evidence and serves health, version and metrics
endpoints. SIGHUP reloads the rule table; SIGINT and SIGTERM shut down
gracefully.

Examples:
  # Start with the built-in rule table
  sentinel run

  # Start with a config file
  sentinel run --config /etc/sentinel/config.yaml

  # Override listen address and rules
  sentinel run --listen 0.0.0.0:8080 --rules rules.yaml

  # Validate config and rules without starting the server
  sentinel run --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.rulesPath, "rules", "", "override rule table path")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and rules without starting server")
}

func runServer(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.rulesPath != "" {
		cfg.Engine.RulesPath = runFlags.rulesPath
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		table, err := ruleSource(cfg.Engine.RulesPath, logger).Load(ctx)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		fmt.Fprintf(out, "✓ Configuration valid\n✓ Rule table %q version %d (%d domains, %d rules)\n",
			table.Source, table.Version, len(table.Domains), len(table.Rules))
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(ctx)
	defer stop()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("init tracing: %w", err))
	}
	defer func() {
		if err := tracer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	emitter, store, err := buildEmitters(ctx, cfg, logger, collector)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	if store != nil {
		defer store.Close()
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := events.Close(closeCtx, emitter); err != nil {
			logger.Warn("failed to drain emitters", "error", err)
		}
	}()

	if store != nil && cfg.Evidence.Retention.PruneSchedule != "" {
		pruner := retention.NewPruner(store, retention.FromConfig(cfg.Evidence.Retention), logger,
			retention.WithMetrics(collector))
		if err := pruner.Start(ctx); err != nil {
			logger.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				logger.Debug("evidence retention scheduler started", "next_pruning", next)
			}
		}
	}

	eng, err := engine.NewEngine(engine.FromConfig(cfg.Engine), ruleSource(cfg.Engine.RulesPath, logger), logger,
		engine.WithEmitter(emitter),
		engine.WithMetrics(collector),
		engine.WithTracer(tracer.Tracer()),
	)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if cfg.Engine.Watch {
		watcher, err := ruletable.NewWatcher(&ruletable.WatcherConfig{
			Path:             cfg.Engine.RulesPath,
			DebounceInterval: cfg.Engine.WatchDebounce,
		}, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer watcher.Stop()
		go func() {
			if err := watcher.Watch(ctx, eng.Reload); err != nil {
				logger.Error("rule table watcher stopped", "error", err)
			}
		}()
	}
	go reloadOnHangup(ctx, eng, logger)

	checker := health.New(0, logger)
	checker.WatchRuleTable(eng.Table)

	opts := []server.Option{
		server.WithHealth(checker, versionInfo()),
		server.WithTracing(cfg.Telemetry.Tracing.Enabled),
	}
	if store != nil {
		opts = append(opts, server.WithEvidence(store, cfg.Evidence.Query))
		if p, ok := store.(health.Pinger); ok {
			checker.RegisterCheck("evidence", health.StorageCheck(p))
		}
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		opts = append(opts, server.WithMetrics(collector, cfg.Telemetry.Metrics.Path))
	}

	srv := server.New(&cfg.Server, eng, logger, opts...)

	table := eng.Table()
	fmt.Fprintf(out, "Sentinel v%s\n", Version)
	fmt.Fprintf(out, "✓ Rule table %q version %d (%d domains, %d rules)\n",
		table.Source, table.Version, len(table.Domains), len(table.Rules))
	if store != nil {
		fmt.Fprintf(out, "✓ Evidence store: %s\n", cfg.Evidence.Backend)
	}
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// buildEmitters wires the telemetry sinks and the evidence recorder into
// one emitter. Telemetry sinks sit behind an async queue; the recorder has
// its own. store is nil when evidence is disabled.
func buildEmitters(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (events.Emitter, evidence.Storage, error) {
	var sinks []events.Emitter
	if cfg.Telemetry.Events.LogEnabled() {
		sinks = append(sinks, events.NewLogEmitter(logger))
	}
	if ps := cfg.Telemetry.Events.PubSub; ps.Enabled {
		publisher, err := events.NewPubSubEmitter(ctx, ps.ProjectID, ps.TopicID, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
	}

	var emitters []events.Emitter
	if len(sinks) > 0 {
		emitters = append(emitters, events.NewAsyncEmitter(events.NewMultiEmitter(sinks...), events.AsyncConfig{
			Name:         "telemetry",
			BufferSize:   cfg.Telemetry.Events.BufferSize,
			WriteTimeout: cfg.Telemetry.Events.WriteTimeout,
		}, logger, collector))
	}

	var store evidence.Storage
	if cfg.Evidence.IsEnabled() {
		var err error
		store, err = storage.New(cfg.Evidence, logger)
		if err != nil {
			_ = events.Close(ctx, events.NewMultiEmitter(emitters...))
			return nil, nil, err
		}
		emitters = append(emitters, recorder.New(store, recorder.FromConfig(cfg.Evidence.Recorder), logger, collector))
	}

	return events.NewMultiEmitter(emitters...), store, nil
}

func reloadOnHangup(ctx context.Context, eng *engine.Engine, logger *slog.Logger) {
	hup, stop := cli.WaitForReload()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := eng.Reload(ctx); err != nil {
				logger.Error("rule table reload failed", "error", err)
				continue
			}
			logger.Info("rule table reloaded", "version", eng.Table().Version)
		}
	}
}
