package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/sentinel/pkg/guardrail/ruletable"
)

// Component statuses.
const (
	StatusOK        = "ok"
	StatusUnhealthy = "unhealthy"
)

// Overall statuses.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
)

// CheckFunc performs a health check for a component. It returns nil if the
// component is healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// HealthStatus is the overall health of the service.
type HealthStatus struct {
	Status string `json:"status"`

	// RuleVersion is the active rule table version, when known.
	RuleVersion uint64 `json:"rule_version,omitempty"`

	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ErrCheckTimeout is reported when a health check does not finish in time.
var ErrCheckTimeout = errors.New("health check timeout")

// Checker runs the registered readiness checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout time.Duration
	version      func() uint64
	logger       *slog.Logger
}

// New creates a checker. A zero timeout defaults to 5 seconds per check.
func New(checkTimeout time.Duration, logger *slog.Logger) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
		logger:       logger.With("component", "health"),
	}
}

// RegisterCheck registers a check for a named component, replacing any
// check with the same name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check
}

// WatchRuleTable registers a "rule_table" check that fails while no table
// is loaded, and reports the active version in every status.
func (c *Checker) WatchRuleTable(table func() *ruletable.Table) {
	c.mu.Lock()
	c.version = func() uint64 {
		if t := table(); t != nil {
			return t.Version
		}
		return 0
	}
	c.mu.Unlock()

	c.RegisterCheck("rule_table", func(ctx context.Context) error {
		if table() == nil {
			return errors.New("no rule table loaded")
		}
		return nil
	})
}

// Pinger is implemented by storage backends that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageCheck returns a check that pings p.
func StorageCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("storage unreachable: %w", err)
		}
		return nil
	}
}

// ListChecks returns the sorted names of all registered checks.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports that the process is serving.
func (c *Checker) CheckLiveness(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:      StatusOK,
		RuleVersion: c.ruleVersion(),
		Timestamp:   time.Now().UTC(),
	}
}

// CheckReadiness runs every registered check concurrently.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result := c.runCheck(ctx, check)
			if result.Status != StatusOK {
				c.logger.Warn("readiness check failed", "check", name, "message", result.Message)
			}

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}()
	}
	wg.Wait()

	status := StatusReady
	for _, result := range results {
		if result.Status != StatusOK {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:      status,
		RuleVersion: c.ruleVersion(),
		Checks:      results,
		Timestamp:   time.Now().UTC(),
	}
}

func (c *Checker) ruleVersion() uint64 {
	c.mu.RLock()
	version := c.version
	c.mu.RUnlock()
	if version == nil {
		return 0
	}
	return version()
}

// runCheck executes a single check with the per-check timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-checkCtx.Done():
		err = ErrCheckTimeout
	}

	result := CheckResult{
		Status:     StatusOK,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
