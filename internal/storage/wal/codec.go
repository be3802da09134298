package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

// Payload fields, protobuf wire format.
const (
	fieldTimestamp protowire.Number = 1
	fieldKey       protowire.Number = 2
	fieldRecord    protowire.Number = 3
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func crc32c(b []byte) uint32 { return crc32.Checksum(b, crcTable) }

func marshalPayload(e *Entry) []byte {
	b := make([]byte, 0, 16+len(e.Key)+len(e.Record))
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	if e.Key != "" {
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendString(b, e.Key)
	}
	if len(e.Record) > 0 {
		b = protowire.AppendTag(b, fieldRecord, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Record)
	}
	return b
}

func unmarshalPayload(b []byte, e *Entry) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptedEntry, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptedEntry, protowire.ParseError(n))
			}
			e.Timestamp = int64(v)
			b = b[n:]
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptedEntry, protowire.ParseError(n))
			}
			e.Key = v
			b = b[n:]
		case num == fieldRecord && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptedEntry, protowire.ParseError(n))
			}
			e.Record = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptedEntry, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// encodeEntryFrame renders [length:4][crc32c:4][op:1][payload].
// With a cipher the payload is sealed and the op byte is bound as
// additional data.
func encodeEntryFrame(e *Entry, cipher adaptive.Cipher) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("wal: entry is nil")
	}
	switch e.OpType {
	case OpTypePut:
		if e.Key == "" || len(e.Record) == 0 {
			return nil, fmt.Errorf("wal: put entry needs key and record")
		}
	case OpTypeDelete:
		if e.Key == "" {
			return nil, fmt.Errorf("wal: delete entry needs a key")
		}
	case OpTypeFlush:
	default:
		return nil, ErrInvalidEntryType
	}

	op := byte(e.OpType)
	payload := marshalPayload(e)
	if cipher != nil {
		sealed, err := cipher.Encrypt(payload, []byte{op})
		if err != nil {
			return nil, fmt.Errorf("wal: encrypt entry: %w", err)
		}
		payload = sealed
	}

	length := uint32(minFrameLen + len(payload))
	out := make([]byte, headerSize+1+len(payload))
	binary.BigEndian.PutUint32(out[0:4], length)
	out[8] = op
	copy(out[9:], payload)
	binary.BigEndian.PutUint32(out[4:8], crc32c(out[8:]))
	return out, nil
}

// decodeEntryFrame parses the bytes after the length field:
// [crc32c:4][op:1][payload].
func decodeEntryFrame(frame []byte, cipher adaptive.Cipher) (*Entry, error) {
	if len(frame) < minFrameLen {
		return nil, ErrCorruptedEntry
	}
	want := binary.BigEndian.Uint32(frame[:4])
	if crc32c(frame[4:]) != want {
		return nil, ErrChecksumMismatch
	}

	op := OpType(frame[4])
	switch op {
	case OpTypePut, OpTypeDelete, OpTypeFlush:
	default:
		return nil, ErrInvalidEntryType
	}

	payload := frame[5:]
	if cipher != nil {
		plain, err := cipher.Decrypt(payload, []byte{frame[4]})
		if err != nil {
			return nil, fmt.Errorf("wal: decrypt entry: %w", err)
		}
		payload = plain
	}

	e := &Entry{OpType: op}
	if err := unmarshalPayload(payload, e); err != nil {
		return nil, err
	}
	if op == OpTypePut && len(e.Record) == 0 {
		return nil, fmt.Errorf("%w: put without record", ErrCorruptedEntry)
	}
	return e, nil
}
