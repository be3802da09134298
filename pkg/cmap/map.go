package cmap

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is used when New is given a non-positive count.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map.
type Map[V any] struct {
	shards []shard[V]
	mask   uint32
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a map with shards rounded up to a power of two.
func New[V any](shards int) *Map[V] {
	if shards <= 0 {
		shards = DefaultShardCount
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	m := &Map[V]{
		shards: make([]shard[V], n),
		mask:   uint32(n - 1),
	}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

func (m *Map[V]) shard(key string) *shard[V] {
	return &m.shards[murmur3.Sum32([]byte(key))&m.mask]
}

// Get retrieves a value by key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shard(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Set stores a key-value pair.
func (m *Map[V]) Set(key string, v V) {
	s := m.shard(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

// GetOrCreate returns the value for key, calling create under the shard
// lock when it is missing. loaded reports whether the value existed.
func (m *Map[V]) GetOrCreate(key string, create func() V) (v V, loaded bool) {
	s := m.shard(key)
	s.mu.RLock()
	v, loaded = s.items[key]
	s.mu.RUnlock()
	if loaded {
		return v, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, loaded = s.items[key]; loaded {
		return v, true
	}
	v = create()
	s.items[key] = v
	return v, false
}

// Delete removes a key.
func (m *Map[V]) Delete(key string) {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns the total number of items. Shards are counted one at a
// time, so the result is approximate under concurrent writes.
func (m *Map[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every item while holding that item's shard read
// lock. fn must not modify the map. Iteration stops when fn returns false.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// DeleteFunc removes every item for which fn returns true and reports
// how many were removed.
func (m *Map[V]) DeleteFunc(fn func(key string, v V) bool) int {
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			if fn(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
