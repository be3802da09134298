// Package domain defines the error taxonomy shared by the data store,
// the command dispatcher and the connection layer.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error by how the connection layer must react to it.
type Kind uint8

const (
	// KindInternal covers resource exhaustion and corrupt internal state.
	// The owning connection is terminated.
	KindInternal Kind = iota
	// KindProtocol is a malformed or oversized frame. The connection is closed.
	KindProtocol
	// KindWrongType is an operation against a key holding another type.
	KindWrongType
	// KindArity is a wrong number of arguments.
	KindArity
	// KindUnknownCommand is a verb missing from the command table.
	KindUnknownCommand
	// KindFormat is an argument that cannot be parsed (integer, float, syntax).
	KindFormat
	// KindNoAuth is a command issued before a required AUTH.
	KindNoAuth
	// KindRateLimited is a command rejected by the per-client limiter.
	KindRateLimited
)

var kindNames = [...]string{
	KindInternal:       "internal",
	KindProtocol:       "protocol",
	KindWrongType:      "wrongtype",
	KindArity:          "arity",
	KindUnknownCommand: "unknown_command",
	KindFormat:         "format",
	KindNoAuth:         "noauth",
	KindRateLimited:    "rate_limited",
}

// String returns a short lower-case name, used as a metric label.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Prefix returns the RESP error prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindWrongType:
		return "WRONGTYPE"
	case KindNoAuth:
		return "NOAUTH"
	default:
		return "ERR"
	}
}

// Terminal reports whether an error of this kind closes the connection.
func (k Kind) Terminal() bool {
	return k == KindProtocol || k == KindInternal
}

// DomainError is an error carrying a Kind and a client-facing message.
// Error() renders the exact RESP error line without the leading '-'.
type DomainError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.Kind.Prefix() + " " + e.Message
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another *DomainError with the same kind and message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates a DomainError of the given kind.
func New(kind Kind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// Newf creates a DomainError with a formatted message.
func Newf(kind Kind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Kind: e.Kind, Message: e.Message, Cause: cause}
}

// KindOf returns the kind of err. Errors that are not DomainErrors are
// internal by definition.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}

// Reply renders err as the body of a RESP error frame. Foreign errors are
// reported generically so internal details never leak to clients.
func Reply(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Error()
	}
	return ErrInternal.Error()
}

// ============================================================================
// Constructors for errors that embed the command name
// ============================================================================

// Arity returns the error for a wrong argument count.
func Arity(command string) *DomainError {
	return Newf(KindArity, "wrong number of arguments for '%s' command", strings.ToLower(command))
}

// UnknownCommand returns the error for a verb missing from the table.
func UnknownCommand(command string, args [][]byte) *DomainError {
	var b strings.Builder
	for i, a := range args {
		if i >= 8 {
			break
		}
		b.WriteByte('\'')
		b.Write(a)
		b.WriteString("' ")
	}
	return Newf(KindUnknownCommand, "unknown command '%s', with args beginning with: %s", command, b.String())
}

// UnknownSubcommand returns the error for an unsupported subcommand.
func UnknownSubcommand(command, sub string) *DomainError {
	return Newf(KindFormat, "unknown subcommand '%s'. Try %s HELP.", sub, strings.ToUpper(command))
}

// InvalidExpire returns the error for a non-positive expire argument.
func InvalidExpire(command string) *DomainError {
	return Newf(KindFormat, "invalid expire time in '%s' command", strings.ToLower(command))
}

// Protocol returns a protocol error with the given detail.
func Protocol(detail string) *DomainError {
	return Newf(KindProtocol, "Protocol error: %s", detail)
}

// Internal wraps an unexpected failure.
func Internal(cause error) *DomainError {
	return ErrInternal.WithCause(cause)
}

// ============================================================================
// Data errors
// ============================================================================

var (
	// ErrWrongType indicates the key holds a value of another type.
	ErrWrongType = New(KindWrongType, "Operation against a key holding the wrong kind of value")

	// ErrNotInteger indicates a value or argument is not a 64-bit integer.
	ErrNotInteger = New(KindFormat, "value is not an integer or out of range")

	// ErrNotFloat indicates a value or argument is not a valid float.
	ErrNotFloat = New(KindFormat, "value is not a valid float")

	// ErrOverflow indicates an increment would overflow int64.
	ErrOverflow = New(KindFormat, "increment or decrement would overflow")

	// ErrNaN indicates a float operation produced NaN.
	ErrNaN = New(KindFormat, "resulting score is not a number (NaN)")

	// ErrSyntax indicates malformed options.
	ErrSyntax = New(KindFormat, "syntax error")

	// ErrNoSuchKey indicates the key does not exist where one is required.
	ErrNoSuchKey = New(KindFormat, "no such key")

	// ErrNotPositive indicates a count argument must be positive.
	ErrNotPositive = New(KindFormat, "value is out of range, must be positive")

	// ErrInvalidCursor indicates a malformed SCAN cursor.
	ErrInvalidCursor = New(KindFormat, "invalid cursor")
)

// ============================================================================
// Option conflicts
// ============================================================================

var (
	// ErrNXAndXX indicates both NX and XX were given.
	ErrNXAndXX = New(KindFormat, "XX and NX options at the same time are not compatible")

	// ErrGTLTNX indicates GT, LT and NX were combined.
	ErrGTLTNX = New(KindFormat, "GT, LT, and/or NX options at the same time are not compatible")

	// ErrIncrPair indicates ZADD INCR got more than one score-member pair.
	ErrIncrPair = New(KindFormat, "INCR option supports a single increment-element pair")
)

// ============================================================================
// Connection errors
// ============================================================================

var (
	// ErrNoAuth indicates AUTH is required.
	ErrNoAuth = New(KindNoAuth, "Authentication required.")

	// ErrInvalidPassword indicates AUTH failed.
	ErrInvalidPassword = New(KindFormat, "invalid password")

	// ErrNoPasswordSet indicates AUTH was called without a configured password.
	ErrNoPasswordSet = New(KindFormat, "AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")

	// ErrRateLimited indicates the client exceeded its command rate.
	ErrRateLimited = New(KindRateLimited, "rate limit exceeded")

	// ErrMaxClients indicates the server refused the connection.
	ErrMaxClients = New(KindInternal, "max number of clients reached")

	// ErrInternal indicates an unexpected server-side failure.
	ErrInternal = New(KindInternal, "internal error")

	// ErrPersistenceDisabled indicates SAVE was issued without persistence.
	ErrPersistenceDisabled = New(KindFormat, "persistence is disabled")

	// ErrSaveInProgress indicates a snapshot is already being written.
	ErrSaveInProgress = New(KindFormat, "Background save already in progress")
)
