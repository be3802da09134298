package resp

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yndnr/tidekv/internal/core/domain"
)

// Kind is the RESP2 frame type.
type Kind uint8

const (
	KindSimpleString Kind = iota + 1
	KindError
	KindInteger
	KindBulkString
	KindArray
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple_string"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulkString:
		return "bulk_string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is one RESP2 frame. It is the result type of every command.
type Value struct {
	Kind Kind

	// Str holds simple strings and full error lines ("ERR message").
	Str string
	// Int holds integers.
	Int int64
	// Bulk holds bulk string payloads.
	Bulk []byte
	// Array holds array elements.
	Array []Value
	// Null marks the nil bulk string and the nil array.
	Null bool
}

// sanitize replaces CR and LF, which cannot appear in line frames.
func sanitize(s string) string {
	if strings.ContainsAny(s, "\r\n") {
		return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	}
	return s
}

// SimpleString returns a status reply.
func SimpleString(s string) Value {
	return Value{Kind: KindSimpleString, Str: sanitize(s)}
}

// OK returns the +OK status reply.
func OK() Value {
	return Value{Kind: KindSimpleString, Str: "OK"}
}

// Error returns an error reply with the full line, e.g. "ERR syntax error".
func Error(line string) Value {
	return Value{Kind: KindError, Str: sanitize(line)}
}

// Err renders err as an error reply. Errors outside the domain taxonomy are
// reported as a generic internal error.
func Err(err error) Value {
	return Error(domain.Reply(err))
}

// Integer returns an integer reply.
func Integer(n int64) Value {
	return Value{Kind: KindInteger, Int: n}
}

// Bool returns :1 or :0.
func Bool(b bool) Value {
	if b {
		return Integer(1)
	}
	return Integer(0)
}

// Bulk returns a bulk string reply. A nil slice is an empty string, not nil.
func Bulk(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{Kind: KindBulkString, Bulk: b}
}

// BulkString returns a bulk string reply from s.
func BulkString(s string) Value {
	return Value{Kind: KindBulkString, Bulk: []byte(s)}
}

// BulkFloat formats f the way Redis replies with scores.
func BulkFloat(f float64) Value {
	return BulkString(FormatFloat(f))
}

// NilBulk returns the nil bulk string ($-1).
func NilBulk() Value {
	return Value{Kind: KindBulkString, Null: true}
}

// Array returns an array reply.
func Array(vals ...Value) Value {
	if vals == nil {
		vals = []Value{}
	}
	return Value{Kind: KindArray, Array: vals}
}

// NilArray returns the nil array (*-1).
func NilArray() Value {
	return Value{Kind: KindArray, Null: true}
}

// BulkArray returns an array of bulk strings.
func BulkArray(items [][]byte) Value {
	vals := make([]Value, len(items))
	for i, b := range items {
		vals[i] = Bulk(b)
	}
	return Array(vals...)
}

// StringArray returns an array of bulk strings.
func StringArray(items []string) Value {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = BulkString(s)
	}
	return Array(vals...)
}

// IsError reports whether v is an error reply.
func (v Value) IsError() bool {
	return v.Kind == KindError
}

// Equal reports whether two values encode to the same frame.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Null != o.Null {
		return false
	}
	switch v.Kind {
	case KindSimpleString, KindError:
		return v.Str == o.Str
	case KindInteger:
		return v.Int == o.Int
	case KindBulkString:
		return bytes.Equal(v.Bulk, o.Bulk)
	case KindArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// FormatFloat renders a score like Redis: shortest representation, with
// "inf" and "-inf" for infinities.
func FormatFloat(f float64) string {
	switch {
	case f > 1.7976931348623157e308:
		return "inf"
	case f < -1.7976931348623157e308:
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
