package value

import (
	"strconv"
	"strings"
)

// Type is the tag of a stored value.
type Type uint8

const (
	TypeString Type = iota + 1
	TypeList
	TypeHash
	TypeSet
	TypeZSet
	TypeBloom
)

// String returns the name reported by the TYPE command.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeHash:
		return "hash"
	case TypeSet:
		return "set"
	case TypeZSet:
		return "zset"
	case TypeBloom:
		return "MBbloom--"
	default:
		return "none"
	}
}

// ParseType maps a TYPE name back to its tag, ignoring case.
func ParseType(name string) (Type, bool) {
	for t := TypeString; t <= TypeBloom; t++ {
		if strings.EqualFold(t.String(), name) {
			return t, true
		}
	}
	return 0, false
}

// Thresholds below which OBJECT ENCODING reports the compact encoding.
const (
	maxEmbstrLen     = 44
	maxListpackItems = 128
	maxIntsetItems   = 512
)

// Value is one of the stored value types.
type Value interface {
	// Type returns the value's tag.
	Type() Type
	// Encoding returns the name reported by OBJECT ENCODING.
	Encoding() string
	// Len returns the number of elements, or the byte length for strings.
	Len() int
}

// Collection is a value that is deleted once its last element is removed.
type Collection interface {
	Value
	collection()
}

// String is a binary-safe byte string.
type String struct {
	b []byte
}

// NewString creates a string value holding a copy of b.
func NewString(b []byte) *String {
	return &String{b: append([]byte(nil), b...)}
}

// NewInt creates a string value holding the decimal form of n.
func NewInt(n int64) *String {
	return &String{b: strconv.AppendInt(nil, n, 10)}
}

func (s *String) Type() Type { return TypeString }
func (s *String) Len() int   { return len(s.b) }

// Bytes returns the payload. Callers must not modify it.
func (s *String) Bytes() []byte { return s.b }

// Encoding mirrors Redis: "int" for canonical integers, "embstr" for short
// strings and "raw" otherwise.
func (s *String) Encoding() string {
	if _, ok := s.Int(); ok && len(s.b) <= 20 {
		return "int"
	}
	if len(s.b) <= maxEmbstrLen {
		return "embstr"
	}
	return "raw"
}

// Int parses the payload as a canonical base-10 int64.
func (s *String) Int() (int64, bool) {
	return ParseInt(s.b)
}

// Append concatenates b and returns the new length.
func (s *String) Append(b []byte) int {
	s.b = append(s.b, b...)
	return len(s.b)
}

// ParseInt parses b as a base-10 int64, rejecting leading '+', spaces and
// leading zeros so that the value round-trips unchanged.
func ParseInt(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 20 || b[0] == '+' {
		return 0, false
	}
	if len(b) > 1 && (b[0] == '0' || (b[0] == '-' && b[1] == '0')) {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
