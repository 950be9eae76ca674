package query

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		query   *evidence.Query
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid query with all filters",
			query: &evidence.Query{
				StartTime:   &past,
				EndTime:     &now,
				RequestID:   "req-1",
				FinalAction: "block",
				Domain:      "financial",
				Limit:       100,
				SortBy:      "rule_version",
				SortOrder:   "desc",
			},
		},
		{
			name:  "empty query",
			query: &evidence.Query{},
		},
		{
			name:    "negative limit",
			query:   &evidence.Query{Limit: -1},
			wantErr: true,
			errMsg:  "limit must be >= 0",
		},
		{
			name:    "limit exceeds max",
			query:   &evidence.Query{Limit: MaxLimit + 1},
			wantErr: true,
			errMsg:  "limit must be <=",
		},
		{
			name:    "negative offset",
			query:   &evidence.Query{Offset: -1},
			wantErr: true,
			errMsg:  "offset must be >= 0",
		},
		{
			name:    "invalid sort field",
			query:   &evidence.Query{SortBy: "actual_cost"},
			wantErr: true,
			errMsg:  "invalid sort field",
		},
		{
			name:    "invalid sort order",
			query:   &evidence.Query{SortOrder: "sideways"},
			wantErr: true,
			errMsg:  "invalid sort order",
		},
		{
			name:    "start after end",
			query:   &evidence.Query{StartTime: &now, EndTime: &past},
			wantErr: true,
			errMsg:  "start_time must be before end_time",
		},
		{
			name:    "unknown final action",
			query:   &evidence.Query{FinalAction: "deny"},
			wantErr: true,
			errMsg:  "invalid final_action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var queryErr *evidence.QueryError
			if !errors.As(err, &queryErr) {
				t.Errorf("error type = %T, want *evidence.QueryError", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidator_ConfiguredLimits(t *testing.T) {
	v := NewValidator(config.QueryConfig{DefaultLimit: 500, MaxLimit: 50})

	q := &evidence.Query{}
	if err := v.Prepare(q); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if q.Limit != 50 {
		t.Errorf("default limit = %d, want it capped to 50", q.Limit)
	}
	if q.SortBy != "evaluated_at" || q.SortOrder != "desc" {
		t.Errorf("sort = %s %s, want evaluated_at desc", q.SortBy, q.SortOrder)
	}

	if err := v.Validate(&evidence.Query{Limit: 51}); err == nil {
		t.Error("Validate(limit 51) succeeded, want error")
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &evidence.Query{Limit: 7, SortOrder: "asc"}
	ApplyDefaults(q)
	if q.Limit != 7 || q.SortOrder != "asc" || q.SortBy != "evaluated_at" {
		t.Errorf("ApplyDefaults() = %+v", q)
	}
}

func TestFromValues(t *testing.T) {
	values := url.Values{
		"start_time":      {"2026-03-01T00:00:00Z"},
		"end_time":        {"2026-03-02T00:00:00Z"},
		"final_action":    {"restrict"},
		"domain":          {"financial"},
		"rule_id":         {"fin-1"},
		"rule_version":    {"4"},
		"autonomy_denied": {"true"},
		"limit":           {"25"},
		"offset":          {"5"},
		"sort_order":      {"ASC"},
	}

	q, err := FromValues(values)
	if err != nil {
		t.Fatalf("FromValues() error = %v", err)
	}
	if q.StartTime == nil || !q.StartTime.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartTime = %v", q.StartTime)
	}
	if q.EndTime == nil {
		t.Error("EndTime not parsed")
	}
	if q.FinalAction != "restrict" || q.Domain != "financial" || q.RuleID != "fin-1" {
		t.Errorf("filters = %+v", q)
	}
	if q.RuleVersion == nil || *q.RuleVersion != 4 {
		t.Errorf("RuleVersion = %v, want 4", q.RuleVersion)
	}
	if q.AutonomyDenied == nil || !*q.AutonomyDenied {
		t.Errorf("AutonomyDenied = %v, want true", q.AutonomyDenied)
	}
	if q.Limit != 25 || q.Offset != 5 || q.SortOrder != "asc" {
		t.Errorf("pagination = limit %d offset %d order %s", q.Limit, q.Offset, q.SortOrder)
	}
}

func TestFromValues_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad time", "start_time", "yesterday"},
		{"bad limit", "limit", "ten"},
		{"bad offset", "offset", "1.5"},
		{"bad version", "rule_version", "-1"},
		{"bad bool", "autonomy_denied", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromValues(url.Values{tt.key: {tt.val}})
			if err == nil {
				t.Fatal("FromValues() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error = %q, want it to name %s", err.Error(), tt.key)
			}
		})
	}
}
