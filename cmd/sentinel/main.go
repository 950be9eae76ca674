// Sentinel is a deterministic guardrail engine for agentic assistants.
//
// It evaluates an intended action against a versioned, domain-keyed rule
// table and returns an auditable allow, redirect, restrict or block
// decision. Every decision can be recorded as tamper-evident evidence.
//
// Usage:
//
//	# Serve the HTTP API with the built-in rule table
//	sentinel run
//
//	# Serve with a configuration file and hot reload of the rules
//	sentinel run --config /etc/sentinel/config.yaml
//
//	# Evaluate one input bundle from stdin
//	echo '{"intent":{"raw_text":"transfer money"}}' | sentinel evaluate
//
//	# Check a rule table
//	sentinel rules lint rules.yaml
//
//	# Query recorded decisions
//	sentinel evidence query --final-action block --limit 20
//
// Variables from a .env file in the working directory are loaded before
// the configuration; SENTINEL_* variables override configuration values.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"mercator-hq/sentinel/pkg/cli"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	os.Exit(cli.ExitCode(Execute()))
}
