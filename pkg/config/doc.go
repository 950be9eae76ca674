// Package config provides configuration management for Sentinel.
//
// Configuration is loaded from a YAML file, completed with defaults,
// overridden from the environment and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("sentinel.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SENTINEL_SECTION_FIELD.
// For example:
//
//   - SENTINEL_ENGINE_RULES_PATH overrides engine.rules_path
//   - SENTINEL_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SENTINEL_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
//  1. Values from the YAML file
//  2. Default values for fields left empty
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Configuration is passed explicitly to the components that need it; this
// package keeps no global state.
package config
