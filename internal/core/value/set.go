package value

import "sort"

// Set is an unordered set of byte strings.
type Set struct {
	m map[string]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{m: make(map[string]struct{})}
}

func (s *Set) Type() Type  { return TypeSet }
func (s *Set) Len() int    { return len(s.m) }
func (s *Set) collection() {}

// Encoding reports "intset" when every member is an integer, "listpack"
// for small sets and "hashtable" otherwise.
func (s *Set) Encoding() string {
	if len(s.m) <= maxIntsetItems {
		allInts := true
		for m := range s.m {
			if _, ok := ParseInt([]byte(m)); !ok {
				allInts = false
				break
			}
		}
		if allInts {
			return "intset"
		}
	}
	if len(s.m) <= maxListpackItems {
		return "listpack"
	}
	return "hashtable"
}

// Add inserts member and reports whether it was new.
func (s *Set) Add(member []byte) bool {
	if _, ok := s.m[string(member)]; ok {
		return false
	}
	s.m[string(member)] = struct{}{}
	return true
}

// Remove deletes member and reports whether it was present.
func (s *Set) Remove(member []byte) bool {
	if _, ok := s.m[string(member)]; !ok {
		return false
	}
	delete(s.m, string(member))
	return true
}

// Has reports whether member is in the set.
func (s *Set) Has(member []byte) bool {
	_, ok := s.m[string(member)]
	return ok
}

// Members returns every member in lexicographic order.
func (s *Set) Members() [][]byte {
	keys := make([]string, 0, len(s.m))
	for m := range s.m {
		keys = append(keys, m)
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// Inter returns the members present in every set. A nil set is empty.
func Inter(sets ...*Set) *Set {
	out := NewSet()
	if len(sets) == 0 {
		return out
	}
	smallest := sets[0]
	for _, s := range sets {
		if s == nil {
			return out
		}
		if s.Len() < smallest.Len() {
			smallest = s
		}
	}
next:
	for m := range smallest.m {
		for _, s := range sets {
			if _, ok := s.m[m]; !ok {
				continue next
			}
		}
		out.m[m] = struct{}{}
	}
	return out
}

// Union returns the members present in any set.
func Union(sets ...*Set) *Set {
	out := NewSet()
	for _, s := range sets {
		if s == nil {
			continue
		}
		for m := range s.m {
			out.m[m] = struct{}{}
		}
	}
	return out
}

// Diff returns the members of the first set absent from all others.
func Diff(first *Set, others ...*Set) *Set {
	out := NewSet()
	if first == nil {
		return out
	}
	for m := range first.m {
		out.m[m] = struct{}{}
	}
	for _, s := range others {
		if s == nil {
			continue
		}
		for m := range s.m {
			delete(out.m, m)
		}
	}
	return out
}
