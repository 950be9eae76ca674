package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNilInput is returned by Evaluate when the input is nil.
	ErrNilInput = errors.New("nil guardrail input")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrNoSource is returned by NewEngine when no rule table source is given.
	ErrNoSource = errors.New("no rule table source")
)

// ReloadError indicates that a rule table could not be loaded. The
// previously published table stays active.
type ReloadError struct {
	Source string
	Cause  error
}

// Error returns the error message.
func (e *ReloadError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("reload rule table from %s: %v", e.Source, e.Cause)
	}
	return fmt.Sprintf("reload rule table: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ReloadError) Unwrap() error {
	return e.Cause
}

// VersionError indicates a reload whose table version does not increase.
type VersionError struct {
	Current  uint64
	Proposed uint64
}

// Error returns the error message.
func (e *VersionError) Error() string {
	return fmt.Sprintf("rule table version %d is not newer than active version %d", e.Proposed, e.Current)
}

// LimitError indicates a rule table that exceeds a configured size limit.
type LimitError struct {
	Kind  string
	Count int
	Max   int
}

// Error returns the error message.
func (e *LimitError) Error() string {
	return fmt.Sprintf("rule table has %d %s, limit is %d", e.Count, e.Kind, e.Max)
}
