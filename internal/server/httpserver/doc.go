// Package httpserver provides the admin HTTP/HTTPS server of tidekv.
//
// Routes:
//
//   - Probes: /health, /ready
//   - Metrics: /metrics (Prometheus text format)
//   - Admin: /admin/v1/status, /admin/v1/snapshots, /admin/v1/config
//
// Admin routes are guarded by the server password when one is configured
// and by a process-wide token bucket. Every request gets a ULID request ID.
package httpserver
