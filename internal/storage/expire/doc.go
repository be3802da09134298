// Package expire runs the active expiration sweep.
//
// Lazy expiry in the keyspace only removes keys that are accessed. The
// Sweeper reclaims the rest: each tick visits shards round-robin, samples
// volatile keys, and resamples a shard while the expired fraction stays
// above the threshold. A tick is bounded by a round count and a time
// budget, so it never scans the whole keyspace.
package expire
