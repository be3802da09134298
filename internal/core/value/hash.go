package value

import "sort"

// Hash maps unique fields to byte string values.
type Hash struct {
	m map[string][]byte
}

// NewHash creates an empty hash.
func NewHash() *Hash {
	return &Hash{m: make(map[string][]byte)}
}

func (h *Hash) Type() Type  { return TypeHash }
func (h *Hash) Len() int    { return len(h.m) }
func (h *Hash) collection() {}

func (h *Hash) Encoding() string {
	if len(h.m) <= maxListpackItems {
		return "listpack"
	}
	return "hashtable"
}

// Set stores field and reports whether the field was new.
func (h *Hash) Set(field, val []byte) bool {
	_, exists := h.m[string(field)]
	h.m[string(field)] = append([]byte(nil), val...)
	return !exists
}

// Get returns the value of field.
func (h *Hash) Get(field []byte) ([]byte, bool) {
	v, ok := h.m[string(field)]
	return v, ok
}

// Delete removes field and reports whether it was present.
func (h *Hash) Delete(field []byte) bool {
	if _, ok := h.m[string(field)]; !ok {
		return false
	}
	delete(h.m, string(field))
	return true
}

// Exists reports whether field is present.
func (h *Hash) Exists(field []byte) bool {
	_, ok := h.m[string(field)]
	return ok
}

// Pairs returns field/value pairs flattened and ordered by field.
func (h *Hash) Pairs() [][]byte {
	fields := make([]string, 0, len(h.m))
	for f := range h.m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	out := make([][]byte, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, []byte(f), h.m[f])
	}
	return out
}
