package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the evidence database schema.
// Timestamps are stored as Unix nanoseconds so both SQLite drivers compare
// and round-trip them identically.
const Schema = `
-- Evidence records table
CREATE TABLE IF NOT EXISTS evidence (
    id TEXT PRIMARY KEY,
    evaluation_id TEXT NOT NULL,
    request_id TEXT,
    session_id TEXT,
    tenant_id TEXT,

    -- Timestamps (Unix nanoseconds)
    evaluated_at INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL,

    -- Decision
    final_action TEXT NOT NULL,
    primary_domain TEXT,
    detected_domains TEXT,
    triggered_rules TEXT,
    any_blocked BOOLEAN NOT NULL DEFAULT 0,
    any_restricted BOOLEAN NOT NULL DEFAULT 0,
    any_redirected BOOLEAN NOT NULL DEFAULT 0,
    user_message TEXT,
    alternatives TEXT,

    -- Reproducibility
    input_hash TEXT NOT NULL,
    rule_version INTEGER NOT NULL,

    -- Autonomy
    autonomy_requested BOOLEAN NOT NULL DEFAULT 0,
    autonomy_denied BOOLEAN NOT NULL DEFAULT 0,

    duration_ns INTEGER,
    results TEXT,
    record_hash TEXT NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_evidence_evaluated_at ON evidence(evaluated_at);
CREATE INDEX IF NOT EXISTS idx_evidence_request_id ON evidence(request_id);
CREATE INDEX IF NOT EXISTS idx_evidence_session_id ON evidence(session_id);
CREATE INDEX IF NOT EXISTS idx_evidence_tenant_id ON evidence(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evidence_final_action ON evidence(final_action);
CREATE INDEX IF NOT EXISTS idx_evidence_primary_domain ON evidence(primary_domain);
CREATE INDEX IF NOT EXISTS idx_evidence_input_hash ON evidence(input_hash);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const selectColumns = `id, evaluation_id, request_id, session_id, tenant_id,
    evaluated_at, recorded_at,
    final_action, primary_domain, detected_domains, triggered_rules,
    any_blocked, any_restricted, any_redirected, user_message, alternatives,
    input_hash, rule_version, autonomy_requested, autonomy_denied,
    duration_ns, results, record_hash`

const insertRecord = `
INSERT INTO evidence (` + selectColumns + `) VALUES (
    ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
)`

// sortColumns maps query sort fields to columns.
var sortColumns = map[string]string{
	"evaluated_at": "evaluated_at",
	"recorded_at":  "recorded_at",
	"rule_version": "rule_version",
	"duration":     "duration_ns",
}
