package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/cli"
)

func TestRunServerDryRun(t *testing.T) {
	tests := []struct {
		name     string
		rules    string
		wantCode int
		wantOut  string
	}{
		{
			name:     "builtin rules",
			wantCode: cli.ExitOK,
			wantOut:  "✓ Configuration valid",
		},
		{
			name:     "custom rules",
			rules:    "testdata/valid-rules.yaml",
			wantCode: cli.ExitOK,
			wantOut:  "version 3 (2 domains, 1 rules)",
		},
		{
			name:     "invalid rules",
			rules:    "testdata/invalid-rules.yaml",
			wantCode: cli.ExitFailure,
		},
		{
			name:     "missing rules",
			rules:    "testdata/nope.yaml",
			wantCode: cli.ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			writeConfig(t)
			runFlags.dryRun = true
			runFlags.rulesPath = tt.rules

			var out bytes.Buffer
			err := runServer(context.Background(), &out)
			if code := cli.ExitCode(err); code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err = %v)", code, tt.wantCode, err)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	resetFlags(t)
	writeConfig(t)
	runFlags.listenAddress = "127.0.0.1:0"
	runFlags.rulesPath = "testdata/valid-rules.yaml"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, &bytes.Buffer{}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}
