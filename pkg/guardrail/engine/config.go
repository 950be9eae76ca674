package engine

import (
	"fmt"

	"mercator-hq/sentinel/pkg/config"
)

// EngineConfig contains configuration for the guardrail engine.
type EngineConfig struct {
	// EnableTrace keeps per-rule traces in every domain result.
	// Default: false.
	EnableTrace bool

	// MaxDomains is the maximum number of domains a rule table may declare.
	// Default: 64.
	MaxDomains int

	// MaxRules is the maximum number of rules a rule table may declare.
	// Default: 1000.
	MaxRules int

	// LintFields logs a warning for every condition whose field path the
	// engine does not know. Such conditions never match.
	// Default: true.
	LintFields bool
}

// DefaultEngineConfig returns an engine configuration with sensible defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		EnableTrace: false,
		MaxDomains:  config.DefaultEngineMaxDomains,
		MaxRules:    config.DefaultEngineMaxRules,
		LintFields:  true,
	}
}

// FromConfig converts the file configuration to an engine configuration.
// Zero limits fall back to the defaults.
func FromConfig(cfg config.EngineConfig) *EngineConfig {
	ec := DefaultEngineConfig()
	ec.EnableTrace = cfg.EnableTrace
	if cfg.MaxDomains > 0 {
		ec.MaxDomains = cfg.MaxDomains
	}
	if cfg.MaxRules > 0 {
		ec.MaxRules = cfg.MaxRules
	}
	if cfg.LintFields != nil {
		ec.LintFields = *cfg.LintFields
	}
	return ec
}

// Validate checks if the configuration is valid.
func (c *EngineConfig) Validate() error {
	if c.MaxDomains <= 0 {
		return fmt.Errorf("%w: max domains must be positive, got %d", ErrInvalidConfig, c.MaxDomains)
	}
	if c.MaxRules <= 0 {
		return fmt.Errorf("%w: max rules must be positive, got %d", ErrInvalidConfig, c.MaxRules)
	}
	return nil
}

// WithTrace enables or disables per-rule traces.
func (c *EngineConfig) WithTrace(enabled bool) *EngineConfig {
	c.EnableTrace = enabled
	return c
}

// WithMaxDomains sets the domain limit.
func (c *EngineConfig) WithMaxDomains(max int) *EngineConfig {
	c.MaxDomains = max
	return c
}

// WithMaxRules sets the rule limit.
func (c *EngineConfig) WithMaxRules(max int) *EngineConfig {
	c.MaxRules = max
	return c
}

// WithLintFields enables or disables field path linting on load.
func (c *EngineConfig) WithLintFields(enabled bool) *EngineConfig {
	c.LintFields = enabled
	return c
}
