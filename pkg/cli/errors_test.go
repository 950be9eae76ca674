package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("server.listen_address", "missing required field")

	expected := "config error in server.listen_address: missing required field"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("run", underlyingErr)

	expected := "command run failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	lintFailed := errors.New("3 issues")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "config error", err: NewConfigError("output", "bad"), want: ExitUsage},
		{name: "wrapped config error", err: fmt.Errorf("load: %w", NewConfigError("f", "m")), want: ExitUsage},
		{name: "exit error", err: NewExitError(3, lintFailed), want: 3},
		{name: "exit error in command error", err: NewCommandError("lint", NewExitError(1, lintFailed)), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	if got := NewExitError(4, nil).Error(); got != "exit status 4" {
		t.Errorf("Error() = %q", got)
	}
	inner := errors.New("lint failed")
	err := NewExitError(1, inner)
	if err.Error() != "lint failed" || !errors.Is(err, inner) {
		t.Errorf("Error() = %q, Is = %v", err.Error(), errors.Is(err, inner))
	}
}
