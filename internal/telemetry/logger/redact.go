package logger

import (
	"log/slog"
	"strings"
)

// Attribute names whose values are secrets. Matching is by substring on
// the lower-cased name, so "requirepass" and "encryption_passphrase" are
// both caught by "pass". A bare "key" is not listed: data keys are logged
// under that name.
var sensitiveKeyPatterns = []string{
	"pass",
	"secret",
	"encryption_key",
	"master_key",
	"credential",
	"auth",
	"token",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive replaces the value of a sensitive attribute, walking
// into groups.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindString:
		if a.Value.String() != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}

// IsSensitiveKey reports whether an attribute name suggests a secret.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// RedactArgs renders command arguments for logging. Arguments of AUTH
// never appear; other arguments are cut to max bytes each.
func RedactArgs(name string, args [][]byte, max int) []string {
	out := make([]string, len(args))
	secret := strings.EqualFold(name, "AUTH")
	for i, a := range args {
		switch {
		case secret:
			out[i] = redactedValue
		case max > 0 && len(a) > max:
			out[i] = string(a[:max]) + "..."
		default:
			out[i] = string(a)
		}
	}
	return out
}
