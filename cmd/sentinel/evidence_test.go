package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/evidence"
)

// recordBatch evaluates the batch fixture with --record.
func recordBatch(t *testing.T) {
	t.Helper()

	evaluateFlags.batch = true
	evaluateFlags.record = true
	if err := evaluateInputs(context.Background(), strings.NewReader(readFile(t, "testdata/batch.jsonl")), &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("evaluateInputs() error = %v", err)
	}
	evaluateFlags = evaluateOptions{file: "-"}
}

func TestEvidenceQuery(t *testing.T) {
	resetFlags(t)
	writeConfig(t)
	recordBatch(t)

	tests := []struct {
		name    string
		setup   func()
		wantIDs []string
	}{
		{
			name:    "all newest first",
			setup:   func() {},
			wantIDs: []string{"b3", "b2", "b1"},
		},
		{
			name:    "oldest first with limit",
			setup:   func() { evidenceFlags.sortOrder = "asc"; evidenceFlags.limit = 2 },
			wantIDs: []string{"b1", "b2"},
		},
		{
			name:    "by final action",
			setup:   func() { evidenceFlags.finalAction = "block" },
			wantIDs: []string{"b2"},
		},
		{
			name:    "by triggered rule",
			setup:   func() { evidenceFlags.ruleID = "self-harm-crisis-language" },
			wantIDs: []string{"b2"},
		},
		{
			name:    "autonomy denied",
			setup:   func() { evidenceFlags.autonomyDenied = "true" },
			wantIDs: []string{"b3"},
		},
		{
			name:    "by detected domain",
			setup:   func() { evidenceFlags.domain = "financial" },
			wantIDs: []string{"b3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cfgFile
			resetFlags(t)
			cfgFile = cfg
			outputFormat = "json"
			evidenceFlags.verify = true
			tt.setup()

			var buf bytes.Buffer
			if err := queryEvidence(context.Background(), &buf); err != nil {
				t.Fatalf("queryEvidence() error = %v", err)
			}

			var records []*evidence.Record
			if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
				t.Fatalf("invalid json: %v\n%s", err, buf.String())
			}
			var ids []string
			for _, r := range records {
				ids = append(ids, r.RequestID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("request ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestEvidenceQueryInvalid(t *testing.T) {
	resetFlags(t)
	writeConfig(t)

	tests := []struct {
		name  string
		setup func()
	}{
		{name: "bad time", setup: func() { evidenceFlags.since = "yesterday" }},
		{name: "bad sort", setup: func() { evidenceFlags.sortBy = "hash" }},
		{name: "bad action", setup: func() { evidenceFlags.finalAction = "deny" }},
		{name: "bad bool", setup: func() { evidenceFlags.autonomyDenied = "maybe" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cfgFile
			resetFlags(t)
			cfgFile = cfg
			tt.setup()

			err := queryEvidence(context.Background(), &bytes.Buffer{})
			if cli.ExitCode(err) != cli.ExitUsage {
				t.Errorf("exit code = %d, want %d (err = %v)", cli.ExitCode(err), cli.ExitUsage, err)
			}
		})
	}
}

func TestEvidenceGetAndCSV(t *testing.T) {
	resetFlags(t)
	writeConfig(t)
	recordBatch(t)

	outputFormat = "csv"
	var buf bytes.Buffer
	if err := queryEvidence(context.Background(), &buf); err != nil {
		t.Fatalf("queryEvidence() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "id,evaluated_at,request_id") {
		t.Fatalf("csv output = %q", buf.String())
	}
	id := strings.SplitN(lines[1], ",", 2)[0]

	outputFormat = "json"
	buf.Reset()
	if err := getEvidence(context.Background(), &buf, id); err != nil {
		t.Fatalf("getEvidence() error = %v", err)
	}
	var record evidence.Record
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if record.ID != id || !record.Verify() {
		t.Errorf("record %s does not verify", record.ID)
	}

	if err := getEvidence(context.Background(), &bytes.Buffer{}, "missing"); cli.ExitCode(err) != cli.ExitFailure {
		t.Errorf("missing record error = %v", err)
	}
}

func TestEvidencePrune(t *testing.T) {
	resetFlags(t)
	writeConfig(t)
	recordBatch(t)

	evidenceFlags.maxRecords = 1
	var buf bytes.Buffer
	if err := pruneEvidence(context.Background(), &buf); err != nil {
		t.Fatalf("pruneEvidence() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Pruned 2 records") {
		t.Errorf("output = %q", buf.String())
	}

	cfg := cfgFile
	resetFlags(t)
	cfgFile = cfg
	outputFormat = "json"
	buf.Reset()
	if err := queryEvidence(context.Background(), &buf); err != nil {
		t.Fatalf("queryEvidence() error = %v", err)
	}
	var records []*evidence.Record
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(records) != 1 || records[0].RequestID != "b3" {
		t.Errorf("remaining records = %+v", records)
	}
}
