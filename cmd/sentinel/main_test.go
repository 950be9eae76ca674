package main

import (
	"os"
	"path/filepath"
	"testing"
)

// resetFlags restores every command flag to its default so tests can run
// the command functions directly.
func resetFlags(t *testing.T) {
	t.Helper()

	cfgFile = defaultConfigFile
	verbose = false
	outputFormat = "text"

	runFlags.listenAddress, runFlags.rulesPath, runFlags.logLevel, runFlags.dryRun = "", "", "", false
	evaluateFlags = evaluateOptions{file: "-"}
	rulesFlags.strict, rulesFlags.maxRules, rulesFlags.maxDomain = false, 0, 0

	evidenceFlags = evidenceOptions{retentionDays: -1, maxRecords: -1}
}

// writeConfig writes a config file pointing the evidence store into a temp
// directory and selects it with --config.
func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "evidence.db")
	doc := "telemetry:\n  logging:\n    level: error\nevidence:\n  backend: sqlite\n  sqlite:\n    path: " + dbPath + "\n"
	path := filepath.Join(dir, "sentinel.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfgFile = path
	return dbPath
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
