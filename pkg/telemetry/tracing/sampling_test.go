package tracing

import (
	"strings"
	"testing"
)

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name        string
		ratio       float64
		wantErr     bool
		description string
	}{
		{"always", 1.0, false, "AlwaysOnSampler"},
		{"never", 0.0, false, "AlwaysOffSampler"},
		{"ratio", 0.25, false, "TraceIDRatioBased"},
		{"negative", -0.1, true, ""},
		{"above one", 1.5, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler(%v) error = %v, wantErr %v", tt.ratio, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !strings.Contains(sampler.Description(), "ParentBased") {
				t.Errorf("Description() = %q, want ParentBased wrapper", sampler.Description())
			}
			if !strings.Contains(sampler.Description(), tt.description) {
				t.Errorf("Description() = %q, want %s", sampler.Description(), tt.description)
			}
		})
	}
}
