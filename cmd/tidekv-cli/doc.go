// Package main provides the entry point for tidekv-cli.
//
// With command arguments the CLI sends one RESP command and prints the
// reply; without them it starts an interactive prompt. The admin and
// config subcommands talk to the admin HTTP API and manage the local
// configuration file.
//
// Usage:
//
//	tidekv-cli SET greeting hello
//	tidekv-cli -r 10000 -c 8 INCR counter
//	tidekv-cli -o json admin status
//	tidekv-cli --profile prod
package main
