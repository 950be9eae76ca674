package config

import "time"

// Config is the root configuration for Sentinel.
type Config struct {
	// Engine contains guardrail engine configuration.
	Engine EngineConfig `yaml:"engine"`

	// Evidence contains audit evidence configuration.
	Evidence EvidenceConfig `yaml:"evidence"`

	// Telemetry contains logging, metrics, tracing and event configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`
}

// EngineConfig contains guardrail engine configuration.
type EngineConfig struct {
	// RulesPath is the rule table YAML file.
	// Empty means the built-in rule table is used.
	RulesPath string `yaml:"rules_path"`

	// Watch reloads the rule table when RulesPath changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period before a reload is triggered.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// EnableTrace keeps per-rule traces in every evaluation.
	// Default: false
	EnableTrace bool `yaml:"enable_trace"`

	// MaxDomains is the maximum number of domains in a rule table.
	// Default: 64
	MaxDomains int `yaml:"max_domains"`

	// MaxRules is the maximum number of rules in a rule table.
	// Default: 1000
	MaxRules int `yaml:"max_rules"`

	// LintFields logs a warning for conditions on unknown field paths.
	// Default: true
	LintFields *bool `yaml:"lint_fields"`
}

// EvidenceConfig contains audit evidence configuration.
type EvidenceConfig struct {
	// Enabled controls whether evaluations are recorded.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend is the storage backend.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder contains recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains retention policy configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query limits.
	Query QueryConfig `yaml:"query"`
}

// IsEnabled reports whether evidence recording is enabled.
func (c *EvidenceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/evidence.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite3" (cgo, mattn/go-sqlite3), "sqlite" (pure Go, modernc.org/sqlite)
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig contains evidence recorder configuration.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing one record to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// StoreTraces keeps per-rule traces in stored records when the engine
	// produces them.
	// Default: false
	StoreTraces bool `yaml:"store_traces"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain records. A negative value keeps
	// records forever.
	// Default: 90
	Days int `yaml:"days"`

	// MaxRecords is the maximum number of records to keep. 0 is unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}

// QueryConfig contains evidence query limits.
type QueryConfig struct {
	// DefaultLimit is used when a query sets no limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps the limit of a single query.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Events contains evaluation event emission configuration.
	Events EventsConfig `yaml:"events"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "sentinel"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "guardrail"
	Subsystem string `yaml:"subsystem"`

	// DurationBuckets defines histogram buckets for evaluation duration (seconds).
	// Default: exponential from 10µs to ~80ms
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// IsEnabled reports whether metrics collection is enabled.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "sentinel"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// EventsConfig contains evaluation event emission configuration.
type EventsConfig struct {
	// Log emits every evaluation event to the structured log.
	// Default: true
	Log *bool `yaml:"log"`

	// BufferSize is the size of the async emitter queue. Events are dropped
	// when it is full.
	// Default: 1024
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds each delivery to a sink.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PubSub publishes events to a Google Cloud Pub/Sub topic.
	PubSub PubSubConfig `yaml:"pubsub"`
}

// LogEnabled reports whether events are written to the log.
func (c *EventsConfig) LogEnabled() bool {
	return c.Log == nil || *c.Log
}

// PubSubConfig contains Pub/Sub publishing configuration.
type PubSubConfig struct {
	// Enabled controls whether events are published.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ProjectID is the Google Cloud project.
	ProjectID string `yaml:"project_id"`

	// TopicID is the topic events are published to.
	// Default: "guardrail-evaluations"
	TopicID string `yaml:"topic_id"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is the address the HTTP server binds to.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits the size of an evaluation request body.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}
