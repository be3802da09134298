// Package handler implements the admin HTTP endpoints of tidekv-server:
// health and readiness probes, server status, snapshot management and
// the sanitized running configuration.
package handler
