// Package logger builds the process *slog.Logger and carries per-request
// identifiers through context.
//
// Every logger built by New shares one level, so a configuration reload
// calling SetLevel takes effect everywhere at once. Attributes whose
// names look like secrets (passwords, keys, tokens) are redacted by the
// handler, and RedactArgs renders command arguments without leaking AUTH
// passwords.
package logger
