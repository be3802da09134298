// Package wal is the append-only journal of keyspace changes.
//
// Every committed write is recorded as the full new state of the key it
// touched (put), its removal (delete), or a flush of the whole keyspace.
// Entries are idempotent, so replaying a segment twice converges on the
// same state.
//
// Segment files:
//
//	wal-<segment-id>.log
//	[magic:8 "TIDEWAL\x01"]
//	[Entry]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the open segment)
//
// Entry frame:
//
//	[Length:4][CRC32C:4][Op:1][Payload:Length-5]
//
// Payload is a protobuf-wire message {1: timestamp ms, 2: key, 3: record},
// sealed with the configured cipher when encryption is enabled.
package wal
