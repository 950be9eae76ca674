package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
	"mercator-hq/sentinel/pkg/telemetry/logging"
)

const defaultConfigFile = "sentinel.yaml"

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - deterministic guardrails for agentic assistants",
	Long: `Sentinel evaluates an assistant's intended action against a versioned,
domain-keyed rule table before the action is taken.

Each evaluation detects the policy domains the request touches, resolves every
domain's rules, reconciles the cross-cutting domain and returns one of allow,
redirect, restrict or block, with a user-facing explanation and alternatives.
Decisions are recorded as hash-sealed evidence records for audit.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml, csv")
}

// loadConfig reads the configuration file with environment overrides. A
// missing default config file is not an error; the defaults apply.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == defaultConfigFile {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// ruleSource returns the configured rule table source, or the built-in
// table when no path is set.
func ruleSource(path string, logger *slog.Logger) ruletable.Source {
	if path == "" {
		return ruletable.NewDefaultSource()
	}
	return ruletable.NewFileSource(path, logger)
}

func formatter() (cli.Formatter, cli.OutputFormat, error) {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return nil, "", err
	}
	return cli.NewFormatter(format), format, nil
}
