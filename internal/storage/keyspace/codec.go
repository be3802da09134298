package keyspace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/tidekv/internal/core/value"
)

// ErrCorruptRecord is returned when a record or snapshot cannot be decoded.
var ErrCorruptRecord = errors.New("keyspace: corrupt record")

// snapshotVersion is written as the first field of every snapshot.
const snapshotVersion = 1

// Record fields.
const (
	fieldKey      protowire.Number = 1
	fieldType     protowire.Number = 2
	fieldExpireAt protowire.Number = 3
	fieldAccessed protowire.Number = 4
	fieldPayload  protowire.Number = 5
	fieldElement  protowire.Number = 6
	fieldMember   protowire.Number = 7
	fieldScores   protowire.Number = 8 // packed fixed64
	fieldBits     protowire.Number = 9 // packed fixed64
	fieldBloomM   protowire.Number = 10
	fieldBloomK   protowire.Number = 11
	fieldBloomN   protowire.Number = 12
	fieldBloomCap protowire.Number = 13
	fieldBloomErr protowire.Number = 14
)

// Snapshot fields.
const (
	fieldVersion protowire.Number = 1
	fieldRecord  protowire.Number = 2
)

func appendPackedFixed64(b []byte, num protowire.Number, vals []uint64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, buf)
}

func parsePackedFixed64(buf []byte) ([]uint64, error) {
	if len(buf)%8 != 0 {
		return nil, ErrCorruptRecord
	}
	out := make([]uint64, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
	return out, nil
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// EncodeRecord serializes key and its entry in protobuf wire format.
func EncodeRecord(key string, e *Entry) []byte {
	b := make([]byte, 0, 64)
	b = appendBytesField(b, fieldKey, []byte(key))
	b = appendVarintField(b, fieldType, uint64(e.Value.Type()))
	if e.ExpireAt > 0 {
		b = appendVarintField(b, fieldExpireAt, uint64(e.ExpireAt))
	}
	if at := e.AccessedAt(); at > 0 {
		b = appendVarintField(b, fieldAccessed, uint64(at))
	}

	switch v := e.Value.(type) {
	case *value.String:
		b = appendBytesField(b, fieldPayload, v.Bytes())
	case *value.List:
		for _, item := range v.All() {
			b = appendBytesField(b, fieldElement, item)
		}
	case *value.Set:
		for _, m := range v.Members() {
			b = appendBytesField(b, fieldElement, m)
		}
	case *value.Hash:
		for _, fv := range v.Pairs() {
			b = appendBytesField(b, fieldElement, fv)
		}
	case *value.ZSet:
		all := v.All()
		scores := make([]uint64, len(all))
		for i, m := range all {
			b = appendBytesField(b, fieldMember, []byte(m.Member))
			scores[i] = math.Float64bits(m.Score)
		}
		b = appendPackedFixed64(b, fieldScores, scores)
	case *value.Bloom:
		bits, m, k, n, capacity, rate := v.Params()
		b = appendPackedFixed64(b, fieldBits, bits)
		b = appendVarintField(b, fieldBloomM, m)
		b = appendVarintField(b, fieldBloomK, uint64(k))
		b = appendVarintField(b, fieldBloomN, uint64(n))
		b = appendVarintField(b, fieldBloomCap, uint64(capacity))
		b = protowire.AppendTag(b, fieldBloomErr, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(rate))
	}
	return b
}

type rawRecord struct {
	key      string
	typ      value.Type
	expireAt int64
	accessed int64
	payload  []byte
	elements [][]byte
	members  [][]byte
	scores   []uint64
	bits     []uint64
	bloomM   uint64
	bloomK   uint64
	bloomN   uint64
	bloomCap uint64
	bloomErr float64
}

// DecodeRecord parses a record produced by EncodeRecord.
func DecodeRecord(b []byte) (string, *Entry, error) {
	var r rawRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			b = b[n:]
			var err error
			switch num {
			case fieldKey:
				r.key = string(v)
			case fieldPayload:
				r.payload = append([]byte(nil), v...)
			case fieldElement:
				r.elements = append(r.elements, v)
			case fieldMember:
				r.members = append(r.members, v)
			case fieldScores:
				r.scores, err = parsePackedFixed64(v)
			case fieldBits:
				r.bits, err = parsePackedFixed64(v)
			}
			if err != nil {
				return "", nil, err
			}
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldType:
				r.typ = value.Type(v)
			case fieldExpireAt:
				r.expireAt = int64(v)
			case fieldAccessed:
				r.accessed = int64(v)
			case fieldBloomM:
				r.bloomM = v
			case fieldBloomK:
				r.bloomK = v
			case fieldBloomN:
				r.bloomN = v
			case fieldBloomCap:
				r.bloomCap = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			if num == fieldBloomErr && typ == protowire.Fixed64Type {
				v, _ := protowire.ConsumeFixed64(b)
				r.bloomErr = math.Float64frombits(v)
			}
			b = b[n:]
		}
	}

	v, err := r.build()
	if err != nil {
		return "", nil, err
	}
	e := &Entry{Value: v, ExpireAt: r.expireAt}
	e.accessed.Store(r.accessed)
	return r.key, e, nil
}

func (r *rawRecord) build() (value.Value, error) {
	switch r.typ {
	case value.TypeString:
		return value.NewString(r.payload), nil
	case value.TypeList:
		l := value.NewList()
		for _, item := range r.elements {
			l.PushBack(item)
		}
		return l, nil
	case value.TypeSet:
		s := value.NewSet()
		for _, m := range r.elements {
			s.Add(m)
		}
		return s, nil
	case value.TypeHash:
		if len(r.elements)%2 != 0 {
			return nil, ErrCorruptRecord
		}
		h := value.NewHash()
		for i := 0; i < len(r.elements); i += 2 {
			h.Set(r.elements[i], r.elements[i+1])
		}
		return h, nil
	case value.TypeZSet:
		if len(r.members) != len(r.scores) {
			return nil, ErrCorruptRecord
		}
		z := value.NewZSet()
		for i, m := range r.members {
			if _, _, err := z.Add(m, math.Float64frombits(r.scores[i]), value.ZAddFlags{}); err != nil {
				return nil, ErrCorruptRecord
			}
		}
		return z, nil
	case value.TypeBloom:
		b, err := value.RestoreBloom(r.bits, r.bloomM, uint32(r.bloomK), int(r.bloomN), int(r.bloomCap), r.bloomErr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrCorruptRecord, r.typ)
	}
}

// ============================================================================
// Snapshot / Restore
// ============================================================================

// Snapshot serializes every live key. See SnapshotWith.
func (db *DB) Snapshot() []byte {
	return db.SnapshotWith(nil)
}

// SnapshotWith serializes every live key, holding one shard's read lock
// at a time so writers to other shards are never blocked.
//
// mark, if non-nil, runs before the first shard is read. Every change
// journaled after mark returns is therefore either already in the
// snapshot or replayed on top of it; because journal records carry full
// per-key state, replaying a change the snapshot already holds is
// harmless. Without a journal the shards are captured at slightly
// different instants.
func (db *DB) SnapshotWith(mark func()) []byte {
	if mark != nil {
		mark()
	}

	out := appendVarintField(nil, fieldVersion, snapshotVersion)
	for _, s := range db.shards {
		out = s.appendRecords(out, db.Now())
	}
	return out
}

func (s *shard) appendRecords(out []byte, now int64) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, e := range s.items {
		if e.expired(now) {
			continue
		}
		out = appendBytesField(out, fieldRecord, EncodeRecord(key, e))
	}
	return out
}

// Restore replaces the whole keyspace with the contents of a snapshot.
// Entries already expired are skipped. On error the keyspace is unchanged.
func (db *DB) Restore(data []byte) error {
	fresh := make([]*shard, len(db.shards))
	for i := range fresh {
		fresh[i] = newShard()
	}

	now := db.Now()
	sawVersion := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			if v != snapshotVersion {
				return fmt.Errorf("%w: unsupported snapshot version %d", ErrCorruptRecord, v)
			}
			sawVersion = true
			data = data[n:]
		case num == fieldRecord && typ == protowire.BytesType:
			rec, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			data = data[n:]
			key, e, err := DecodeRecord(rec)
			if err != nil {
				return err
			}
			if e.expired(now) {
				continue
			}
			fresh[db.shardIndex(key)].setLocked(key, e)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if !sawVersion {
		return fmt.Errorf("%w: missing snapshot version", ErrCorruptRecord)
	}

	for _, s := range db.shards {
		s.mu.Lock()
	}
	for i, s := range db.shards {
		s.items = fresh[i].items
		s.volatile = fresh[i].volatile
	}
	for i := len(db.shards) - 1; i >= 0; i-- {
		db.shards[i].mu.Unlock()
	}
	return nil
}

// ApplyRecord installs a journaled record, replacing any current value.
func (db *DB) ApplyRecord(record []byte) error {
	key, e, err := DecodeRecord(record)
	if err != nil {
		return err
	}
	s := db.shards[db.shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.expired(db.Now()) {
		s.deleteLocked(key)
		return nil
	}
	s.setLocked(key, e)
	return nil
}

// ApplyDelete removes key during journal replay.
func (db *DB) ApplyDelete(key string) {
	s := db.shards[db.shardIndex(key)]
	s.mu.Lock()
	s.deleteLocked(key)
	s.mu.Unlock()
}
