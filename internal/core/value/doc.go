// Package value implements the value types held by the keyspace.
//
// Types:
//   - String: binary-safe byte string with integer helpers
//   - List: double-ended queue of byte strings
//   - Hash: field to byte string mapping
//   - Set: unordered set of byte strings
//   - ZSet: sorted set ordered by (score, member), backed by a hash map
//     for O(1) score lookup and a skiplist with spans for rank queries
//   - Bloom: fixed-size bloom filter
//
// None of the types are safe for concurrent use. The keyspace serializes
// access through its shard locks.
package value
