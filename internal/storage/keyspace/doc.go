// Package keyspace provides the sharded in-memory database of tidekv.
//
// Keys are spread over a power-of-two number of shards selected by
// murmur3. Each shard owns a map of entries and an index of keys that
// carry an expiry, used by the active sweeper for sampling.
//
// All access goes through View and Update, which lock the shards of the
// named keys in ascending order and hand out a Txn. Lazy expiry happens
// inside the Txn: expired entries are invisible, and removed when the
// transaction is writable.
//
// Committed changes are reported to an optional Journal as full per-key
// records, so replaying a journal is idempotent.
package keyspace
