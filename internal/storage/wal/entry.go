package wal

import (
	"errors"
	"time"
)

// Frame layout constants.
const (
	// headerSize is length (4) + crc (4).
	headerSize = 8

	// minFrameLen is crc (4) + op (1): the smallest valid length field.
	minFrameLen = 5

	// maxFrameLen bounds a single entry; larger length fields mean corruption.
	maxFrameLen = 1 << 30
)

// Errors for WAL operations.
var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidEntryType = errors.New("wal: invalid entry type")
	ErrClosed           = errors.New("wal: writer is closed")
)

// OpType is the kind of keyspace change an entry records.
type OpType uint8

const (
	OpTypeUnspecified OpType = iota
	// OpTypePut carries the full encoded state of one key.
	OpTypePut
	// OpTypeDelete removes one key.
	OpTypeDelete
	// OpTypeFlush removes every key.
	OpTypeFlush
)

func (t OpType) String() string {
	switch t {
	case OpTypePut:
		return "put"
	case OpTypeDelete:
		return "delete"
	case OpTypeFlush:
		return "flush"
	default:
		return "unspecified"
	}
}

// Entry is one durable keyspace change.
//
// Timestamp is Unix milliseconds. Record is a keyspace record (see
// keyspace.EncodeRecord) and is only set for OpTypePut.
type Entry struct {
	OpType    OpType
	Timestamp int64
	Key       string
	Record    []byte
}

// NewPutEntry records the new state of key.
func NewPutEntry(key string, record []byte) *Entry {
	return &Entry{
		OpType:    OpTypePut,
		Timestamp: time.Now().UnixMilli(),
		Key:       key,
		Record:    record,
	}
}

// NewDeleteEntry records the removal of key.
func NewDeleteEntry(key string) *Entry {
	return &Entry{
		OpType:    OpTypeDelete,
		Timestamp: time.Now().UnixMilli(),
		Key:       key,
	}
}

// NewFlushEntry records the removal of every key.
func NewFlushEntry() *Entry {
	return &Entry{
		OpType:    OpTypeFlush,
		Timestamp: time.Now().UnixMilli(),
	}
}
