// Package storage makes the keyspace durable.
//
// An Engine attaches to a keyspace.DB and combines two mechanisms:
//
//   - Snapshots: full images of the keyspace written to a snapshot.Store,
//     either checksummed files or a badger database.
//   - WAL: every committed change is journaled as the full state of the
//     key (or its deletion), so replay is idempotent.
//
// Recover loads the newest valid snapshot and replays the WAL from the
// offset recorded with it. Snapshots are taken on an interval, on demand
// (SAVE, BGSAVE, the admin API) and on Close. After each snapshot the WAL
// segments it covers are compacted away. Both snapshots and WAL segments
// may be encrypted with keys derived from one master key or passphrase.
package storage
