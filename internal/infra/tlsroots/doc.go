// Package tlsroots provides the TLS material of the RESP listener and the
// CLI:
//
//   - roots.go: CA pools for client verification and for the CLI
//   - server.go: Server tls.Config with optional client certificates
//   - watcher.go: Certificate hot reload via fsnotify
package tlsroots
