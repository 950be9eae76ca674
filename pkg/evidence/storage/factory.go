package storage

import (
	"fmt"
	"log/slog"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
)

// New creates the storage backend selected by cfg.Backend.
func New(cfg config.EvidenceConfig, logger *slog.Logger) (evidence.Storage, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteStorage(FromConfig(cfg.SQLite), logger)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, evidence.NewStorageError(cfg.Backend, "open", fmt.Errorf("unknown storage backend %q", cfg.Backend))
	}
}

// FromConfig converts the file configuration into a SQLiteConfig. Zero
// values fall back to DefaultSQLiteConfig.
func FromConfig(cfg config.SQLiteConfig) *SQLiteConfig {
	c := DefaultSQLiteConfig()
	if cfg.Path != "" {
		c.Path = cfg.Path
	}
	if cfg.Driver != "" {
		c.Driver = cfg.Driver
	}
	if cfg.MaxOpenConns > 0 {
		c.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		c.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.WALMode != nil {
		c.WALMode = *cfg.WALMode
	}
	if cfg.BusyTimeout > 0 {
		c.BusyTimeout = cfg.BusyTimeout
	}
	return c
}
