// Package config provides server configuration for tidekv.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (address syntax, limits, backends, key material)
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - reload.go: The subset of settings applied without a restart
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and TIDEKV_* environment variables, on top of Default().
package config
