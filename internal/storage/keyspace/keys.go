package keyspace

import (
	"sort"

	"github.com/yndnr/tidekv/internal/core/value"
)

// Keys returns the live keys matching a glob pattern, sorted. Shards are
// visited one at a time, so the result is not a point-in-time view.
func (db *DB) Keys(pattern string) []string {
	p := CompilePattern(pattern)
	now := db.Now()
	var out []string
	for _, s := range db.shards {
		s.mu.RLock()
		for key, e := range s.items {
			if !e.expired(now) && p.Match(key) {
				out = append(out, key)
			}
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// ScanOptions filters a SCAN step.
type ScanOptions struct {
	Match string
	Count int
	Type  value.Type // zero means any type
}

// Scan walks the keyspace shard by shard. The cursor is the index of the
// next shard to visit, and zero once the walk is complete. Whole shards are
// returned, so Count is a lower bound hint. Keys present for the whole walk
// are returned exactly once.
func (db *DB) Scan(cursor uint64, opts ScanOptions) (uint64, []string) {
	count := opts.Count
	if count <= 0 {
		count = 10
	}
	var p *Pattern
	if opts.Match != "" {
		p = CompilePattern(opts.Match)
	}

	out := []string{}
	if cursor >= uint64(len(db.shards)) {
		return 0, out
	}
	now := db.Now()
	i := int(cursor)
	visited := 0
	for i < len(db.shards) && visited < count {
		s := db.shards[i]
		s.mu.RLock()
		for key, e := range s.items {
			visited++
			if e.expired(now) {
				continue
			}
			if opts.Type != 0 && e.Value.Type() != opts.Type {
				continue
			}
			if p != nil && !p.Match(key) {
				continue
			}
			out = append(out, key)
		}
		s.mu.RUnlock()
		i++
	}
	sort.Strings(out)
	if i >= len(db.shards) {
		return 0, out
	}
	return uint64(i), out
}
