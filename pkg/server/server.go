package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/evidence/query"
	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
	"mercator-hq/sentinel/pkg/telemetry/health"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
	"mercator-hq/sentinel/pkg/telemetry/tracing"
)

// Engine is the guardrail engine as seen by the HTTP layer.
type Engine interface {
	Evaluate(ctx context.Context, in *guardrail.Input) (*guardrail.Evaluation, error)
	Table() *ruletable.Table
	Reload(ctx context.Context) error
}

// Server is the HTTP front end of the guardrail engine.
type Server struct {
	config *config.ServerConfig
	engine Engine
	logger *slog.Logger

	evidence  evidence.Storage
	validator *query.Validator

	checker     *health.Checker
	version     health.VersionInfo
	metrics     *metrics.Collector
	metricsPath string
	tracing     bool

	httpServer *http.Server
	mu         sync.Mutex
	running    bool
}

// Option configures a Server.
type Option func(*Server)

// WithEvidence serves /v1/evidence from store.
func WithEvidence(store evidence.Storage, cfg config.QueryConfig) Option {
	return func(s *Server) {
		s.evidence = store
		s.validator = query.NewValidator(cfg)
	}
}

// WithHealth serves the probe endpoints from checker.
func WithHealth(checker *health.Checker, version health.VersionInfo) Option {
	return func(s *Server) {
		s.checker = checker
		s.version = version
	}
}

// WithMetrics serves the Prometheus registry of collector at path.
func WithMetrics(collector *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.metrics = collector
		s.metricsPath = path
	}
}

// WithTracing extracts trace context from incoming requests.
func WithTracing(enabled bool) Option {
	return func(s *Server) {
		s.tracing = enabled
	}
}

// New creates a server. A nil cfg uses the configuration defaults.
func New(cfg *config.ServerConfig, engine Engine, logger *slog.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:      cfg,
		engine:      engine,
		logger:      logger.With("component", "server"),
		metricsPath: config.DefaultMetricsPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.checker == nil {
		s.checker = health.New(0, logger)
		s.checker.WatchRuleTable(engine.Table)
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /v1/rules", s.handleRules)
	mux.HandleFunc("POST /v1/rules/reload", s.handleReload)
	mux.HandleFunc("GET /v1/evidence", s.handleEvidenceQuery)
	mux.HandleFunc("GET /v1/evidence/{id}", s.handleEvidenceGet)

	health.Register(mux, s.checker, s.version)

	if s.metrics != nil && s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}

	var handler http.Handler = mux
	if s.tracing {
		handler = tracing.HTTPMiddleware(handler)
	}
	handler = recoveryMiddleware(s.logger)(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)

	return handler
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.running = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting guardrail server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.WithoutCancel(ctx))
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server within the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.running = false
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("guardrail server stopped")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
