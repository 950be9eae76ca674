package ruletable

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

//go:embed defaults/guardrails.yaml
var defaultTable []byte

// Source provides rule tables to the engine.
type Source interface {
	// Load returns a validated, compiled table.
	Load(ctx context.Context) (*Table, error)
}

// FileSource loads a rule table from a YAML file on disk.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a file-based rule table source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "ruletable.file"),
	}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and parses the file.
func (s *FileSource) Load(ctx context.Context) (*Table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule table %q: %w", s.path, err)
	}

	t, err := Parse(data, s.path)
	if err != nil {
		return nil, err
	}
	t.LoadedAt = time.Now()

	s.logger.Info("loaded rule table",
		"path", s.path,
		"version", t.Version,
		"domains", len(t.Domains),
		"rules", len(t.Rules),
	)

	return t, nil
}

// MemorySource serves a table held in memory. It is used in tests and by
// callers that build tables programmatically.
type MemorySource struct {
	mu    sync.RWMutex
	table *Table
}

// NewMemorySource creates an in-memory source.
func NewMemorySource(t *Table) *MemorySource {
	return &MemorySource{table: t}
}

// Load validates and returns the current table.
func (s *MemorySource) Load(ctx context.Context) (*Table, error) {
	s.mu.RLock()
	t := s.table
	s.mu.RUnlock()

	if t == nil {
		return nil, ErrNoTable
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	t.Compile()
	return t, nil
}

// Set replaces the table returned by subsequent loads.
func (s *MemorySource) Set(t *Table) {
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
}

// DefaultSource serves the built-in rule table.
type DefaultSource struct{}

// NewDefaultSource creates a source for the built-in table.
func NewDefaultSource() *DefaultSource {
	return &DefaultSource{}
}

// Load parses a fresh copy of the built-in table.
func (DefaultSource) Load(ctx context.Context) (*Table, error) {
	t, err := Parse(defaultTable, "builtin")
	if err != nil {
		return nil, fmt.Errorf("built-in rule table is invalid: %w", err)
	}
	t.LoadedAt = time.Now()
	return t, nil
}

// DefaultYAML returns the built-in table document.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultTable))
	copy(out, defaultTable)
	return out
}
