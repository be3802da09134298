// Package cmap provides a sharded, string-keyed concurrent map.
//
// Each shard has its own RWMutex, so goroutines touching different keys
// rarely contend. Keys are spread with murmur3, the same hash the keyspace
// uses for its shards.
//
// Usage:
//
//	m := cmap.New[*bucket](16)
//	b, _ := m.GetOrCreate(ip, newBucket)
//	m.DeleteFunc(func(_ string, b *bucket) bool { return b.idle() })
package cmap
