// Package command provides CLI command definitions for tidekv-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, mode detection
//   - session.go: Resolved connection settings shared by every command
//   - resp.go: One-shot, repeated and interactive RESP commands
//   - admin.go: Admin API subcommand group
//   - config.go: CLI configuration subcommand group
//
// Arguments that do not name a subcommand are sent to the server as a
// RESP command, so "tidekv-cli SET k v" works like redis-cli.
package command
