package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/guardrail"
)

// Supported database/sql driver names.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPure is modernc.org/sqlite, which needs no cgo.
	DriverPure = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" opens a private in-memory
	// database.
	Path string

	// Driver selects the database/sql driver.
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/evidence.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements evidence.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, initializes the schema and enables
// WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPure {
		return nil, evidence.NewStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", config.Driver))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "evidence.storage.sqlite")

	if config.Path != ":memory:" {
		if dir := filepath.Dir(config.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, evidence.NewStorageError("sqlite", "open", err)
			}
		}
	}

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}

	// An in-memory database exists per connection.
	if config.Path == ":memory:" {
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
		config.WALMode = false
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return evidence.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return evidence.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return evidence.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return evidence.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store persists a record.
func (s *SQLiteStorage) Store(ctx context.Context, record *evidence.Record) error {
	detected, err := marshalJSON(record.DetectedDomains)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}
	triggered, err := marshalJSON(record.TriggeredRules)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}
	alternatives, err := marshalJSON(record.Alternatives)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}
	results, err := marshalJSON(record.Results)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}

	_, err = s.db.ExecContext(ctx, insertRecord,
		record.ID, record.EvaluationID, record.RequestID, record.SessionID, record.TenantID,
		record.EvaluatedAt.UnixNano(), record.RecordedAt.UnixNano(),
		record.FinalAction, record.PrimaryDomain, detected, triggered,
		record.CrossDomain.AnyBlocked, record.CrossDomain.AnyRestricted, record.CrossDomain.AnyRedirected,
		record.UserMessage, alternatives,
		record.InputHash, int64(record.RuleVersion), record.AutonomyRequested, record.AutonomyDenied,
		int64(record.Duration), results, record.Hash,
	)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*evidence.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM evidence WHERE id = ?", id)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, evidence.NewStorageError("sqlite", "get", err)
		}
		return nil, evidence.ErrNotFound
	}
	record, err := scanRecord(rows)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "scan", err)
	}
	return record, nil
}

// Query retrieves records matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT " + selectColumns + " FROM evidence"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	sortBy := sortColumns["evaluated_at"]
	if col, ok := sortColumns[query.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	// id breaks ties so pagination is stable.
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", sortBy, sortOrder, sortOrder)

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*evidence.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}

	return records, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM evidence"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM evidence"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, evidence.NewStorageError("sqlite", "delete", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, evidence.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return evidence.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the clause without the "WHERE" keyword and the query arguments.
func buildWhereClause(query *evidence.Query) (string, []any) {
	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "evaluated_at >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "evaluated_at <= ?")
		args = append(args, query.EndTime.UnixNano())
	}

	equals := []struct {
		column string
		value  string
	}{
		{"evaluation_id", query.EvaluationID},
		{"request_id", query.RequestID},
		{"session_id", query.SessionID},
		{"tenant_id", query.TenantID},
		{"final_action", query.FinalAction},
		{"primary_domain", query.PrimaryDomain},
		{"input_hash", query.InputHash},
	}
	for _, eq := range equals {
		if eq.value != "" {
			conditions = append(conditions, eq.column+" = ?")
			args = append(args, eq.value)
		}
	}

	// Both columns hold JSON arrays of strings. Elements compare exactly,
	// as the memory backend does.
	if query.Domain != "" {
		conditions = append(conditions, jsonContains("detected_domains"))
		args = append(args, query.Domain)
	}
	if query.RuleID != "" {
		conditions = append(conditions, jsonContains("triggered_rules"))
		args = append(args, query.RuleID)
	}

	if query.RuleVersion != nil {
		conditions = append(conditions, "rule_version = ?")
		args = append(args, int64(*query.RuleVersion))
	}
	if query.AutonomyDenied != nil {
		conditions = append(conditions, "autonomy_denied = ?")
		args = append(args, *query.AutonomyDenied)
	}

	return strings.Join(conditions, " AND "), args
}

// jsonContains matches rows whose JSON array column has an element equal
// to the bound argument.
func jsonContains(column string) string {
	return "EXISTS (SELECT 1 FROM json_each(" + column + ") WHERE json_each.value = ?)"
}

// scanRecord scans a database row into a Record.
func scanRecord(rows *sql.Rows) (*evidence.Record, error) {
	var record evidence.Record
	var requestID, sessionID, tenantID, primaryDomain, userMessage sql.NullString
	var detected, triggered, alternatives, results sql.NullString
	var evaluatedAt, recordedAt, ruleVersion int64
	var duration sql.NullInt64

	err := rows.Scan(
		&record.ID, &record.EvaluationID, &requestID, &sessionID, &tenantID,
		&evaluatedAt, &recordedAt,
		&record.FinalAction, &primaryDomain, &detected, &triggered,
		&record.CrossDomain.AnyBlocked, &record.CrossDomain.AnyRestricted, &record.CrossDomain.AnyRedirected,
		&userMessage, &alternatives,
		&record.InputHash, &ruleVersion, &record.AutonomyRequested, &record.AutonomyDenied,
		&duration, &results, &record.Hash,
	)
	if err != nil {
		return nil, err
	}

	record.RequestID = requestID.String
	record.SessionID = sessionID.String
	record.TenantID = tenantID.String
	record.PrimaryDomain = primaryDomain.String
	record.UserMessage = userMessage.String
	record.EvaluatedAt = time.Unix(0, evaluatedAt).UTC()
	record.RecordedAt = time.Unix(0, recordedAt).UTC()
	record.RuleVersion = uint64(ruleVersion)
	record.Duration = time.Duration(duration.Int64)

	if err := unmarshalJSON(detected, &record.DetectedDomains); err != nil {
		return nil, fmt.Errorf("detected_domains: %w", err)
	}
	if err := unmarshalJSON(triggered, &record.TriggeredRules); err != nil {
		return nil, fmt.Errorf("triggered_rules: %w", err)
	}
	if err := unmarshalJSON(alternatives, &record.Alternatives); err != nil {
		return nil, fmt.Errorf("alternatives: %w", err)
	}
	var domainResults []guardrail.DomainResult
	if err := unmarshalJSON(results, &domainResults); err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	record.Results = domainResults

	return &record, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}
