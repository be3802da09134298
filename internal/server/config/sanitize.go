// Package config defines the server configuration structure.
package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration and for the admin config endpoint.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	// All sections are values, so a shallow copy is a full copy.
	sanitized := *cfg

	sanitized.Server.RESP.RequirePass = maskSecret(sanitized.Server.RESP.RequirePass)
	sanitized.Security.EncryptionKey = maskSecret(sanitized.Security.EncryptionKey)
	sanitized.Security.EncryptionPassphrase = maskSecret(sanitized.Security.EncryptionPassphrase)

	return &sanitized
}

// maskSecret masks a secret value for safe logging. Empty stays empty so
// an unset secret is still visibly unset.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
