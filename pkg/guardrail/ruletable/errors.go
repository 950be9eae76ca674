package ruletable

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTable is returned by a MemorySource that holds no table.
var ErrNoTable = errors.New("no rule table configured")

// ParseError represents a failure to decode a rule table document.
type ParseError struct {
	// Source is the file path or name of the document.
	Source string

	// Message describes the error.
	Message string

	// Cause is the underlying decoder error.
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error in %q: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error in %q: %s", e.Source, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Severity classifies a lint issue.
type Severity string

const (
	// SeverityError makes a table unusable.
	SeverityError Severity = "error"

	// SeverityWarning flags a rule that loads but may never trigger as intended.
	SeverityWarning Severity = "warning"
)

// Issue is one problem found while checking a rule table.
type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`

	// Domain and RuleID locate the issue when applicable.
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
	RuleID string `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`

	// Path is the location within the table, e.g. "rules[2].conditions[0]".
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	Message string `json:"message" yaml:"message"`
}

// String renders the issue on one line.
func (i Issue) String() string {
	parts := []string{string(i.Severity) + ":"}
	if i.Domain != "" {
		parts = append(parts, fmt.Sprintf("domain %q", i.Domain))
	}
	if i.RuleID != "" {
		parts = append(parts, fmt.Sprintf("rule %q", i.RuleID))
	}
	if i.Path != "" {
		parts = append(parts, "at "+i.Path)
	}
	parts = append(parts, i.Message)
	return strings.Join(parts, " ")
}

// ValidationError lists every error-severity issue found in a table.
type ValidationError struct {
	Source string
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("invalid rule table %q: %s", e.Source, e.Issues[0])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid rule table %q: %d problems:", e.Source, len(e.Issues))
	for i, issue := range e.Issues {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, issue)
	}
	return sb.String()
}
