// Package main provides the entry point for tidekv-server.
//
// tidekv-server is an in-memory key-value server speaking the RESP2
// protocol, with optional snapshot/WAL persistence and an admin HTTP API.
//
// Usage:
//
//	tidekv-server [--config FILE] [--log-level LEVEL] [--resp-addr ADDR]
//
// Every flag can also be set through its TIDEKV_* environment variable.
// Changes to the configuration file are applied without a restart where
// possible: log level, expiry tuning and rate limits.
package main
