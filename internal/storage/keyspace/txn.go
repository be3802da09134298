package keyspace

import (
	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/core/value"
)

// Txn is the view of the keys locked by View or Update. It must not be used
// after fn returns, and it panics on keys outside the locked shards.
type Txn struct {
	db       *DB
	now      int64
	locked   []int
	writable bool
	dirty    map[string]struct{}
}

func (db *DB) newTxn(locked []int, writable bool) *Txn {
	return &Txn{
		db:       db,
		now:      db.Now(),
		locked:   locked,
		writable: writable,
	}
}

// Now returns the transaction timestamp in Unix milliseconds.
func (tx *Txn) Now() int64 {
	return tx.now
}

func (tx *Txn) shard(key string) *shard {
	i := tx.db.shardIndex(key)
	for _, l := range tx.locked {
		if l == i {
			return tx.db.shards[i]
		}
	}
	panic("keyspace: key " + key + " is outside the transaction")
}

func (tx *Txn) markDirty(key string) {
	if tx.dirty == nil {
		tx.dirty = make(map[string]struct{})
	}
	tx.dirty[key] = struct{}{}
}

// lookup returns the live entry for key. Expired entries are removed when
// the transaction is writable and hidden otherwise.
func (tx *Txn) lookup(key string, touch bool) *Entry {
	s := tx.shard(key)
	e, ok := s.items[key]
	if !ok {
		return nil
	}
	if e.expired(tx.now) {
		if tx.writable {
			s.deleteLocked(key)
			tx.db.expired.Add(1)
			tx.markDirty(key)
		}
		return nil
	}
	if touch {
		e.accessed.Store(tx.now)
	}
	return e
}

// Get returns the live entry for key and records the access.
func (tx *Txn) Get(key string) (*Entry, bool) {
	e := tx.lookup(key, true)
	return e, e != nil
}

// Peek returns the live entry for key without recording an access.
func (tx *Txn) Peek(key string) (*Entry, bool) {
	e := tx.lookup(key, false)
	return e, e != nil
}

// Exists reports whether key holds a live value.
func (tx *Txn) Exists(key string) bool {
	return tx.lookup(key, false) != nil
}

func (tx *Txn) mustWrite() {
	if !tx.writable {
		panic("keyspace: write in read-only transaction")
	}
}

// Set stores v under key, replacing any previous value and its expiry.
func (tx *Txn) Set(key string, v value.Value, expireAt int64) {
	tx.mustWrite()
	e := &Entry{Value: v, ExpireAt: expireAt}
	e.accessed.Store(tx.now)
	tx.shard(key).setLocked(key, e)
	tx.markDirty(key)
}

// Delete removes key and reports whether a live value was removed.
func (tx *Txn) Delete(key string) bool {
	tx.mustWrite()
	if tx.lookup(key, false) == nil {
		return false
	}
	tx.shard(key).deleteLocked(key)
	tx.markDirty(key)
	return true
}

// SetExpire changes the expiry of a live key. Zero removes the expiry.
// An instant in the past deletes the key.
func (tx *Txn) SetExpire(key string, expireAt int64) bool {
	tx.mustWrite()
	e := tx.lookup(key, false)
	if e == nil {
		return false
	}
	s := tx.shard(key)
	if expireAt > 0 && expireAt <= tx.now {
		s.deleteLocked(key)
	} else {
		e.ExpireAt = expireAt
		s.setLocked(key, e)
	}
	tx.markDirty(key)
	return true
}

// Rename moves src to dst, overwriting dst.
func (tx *Txn) Rename(src, dst string) error {
	tx.mustWrite()
	e := tx.lookup(src, false)
	if e == nil {
		return domain.ErrNoSuchKey
	}
	if src == dst {
		return nil
	}
	tx.shard(src).deleteLocked(src)
	tx.shard(dst).setLocked(dst, e)
	tx.markDirty(src)
	tx.markDirty(dst)
	return nil
}

// ============================================================================
// Typed access
// ============================================================================

// typed returns the live value of key if it has type t. When absent and
// create is non-nil, a new value is stored. Typed access in a writable
// transaction marks the key dirty since the caller may mutate the value.
func (tx *Txn) typed(key string, t value.Type, create func() (value.Value, error)) (value.Value, error) {
	e := tx.lookup(key, true)
	if e == nil {
		if create == nil {
			return nil, nil
		}
		v, err := create()
		if err != nil {
			return nil, err
		}
		tx.Set(key, v, 0)
		return v, nil
	}
	if e.Value.Type() != t {
		return nil, domain.ErrWrongType
	}
	if tx.writable {
		tx.markDirty(key)
	}
	return e.Value, nil
}

// String returns the string at key, or nil if absent.
func (tx *Txn) String(key string) (*value.String, error) {
	v, err := tx.typed(key, value.TypeString, nil)
	if v == nil || err != nil {
		return nil, err
	}
	return v.(*value.String), nil
}

// List returns the list at key. When create is set an absent key is
// initialized with an empty list.
func (tx *Txn) List(key string, create bool) (*value.List, error) {
	var mk func() (value.Value, error)
	if create {
		mk = func() (value.Value, error) { return value.NewList(), nil }
	}
	v, err := tx.typed(key, value.TypeList, mk)
	if v == nil || err != nil {
		return nil, err
	}
	return v.(*value.List), nil
}

// Hash returns the hash at key.
func (tx *Txn) Hash(key string, create bool) (*value.Hash, error) {
	var mk func() (value.Value, error)
	if create {
		mk = func() (value.Value, error) { return value.NewHash(), nil }
	}
	v, err := tx.typed(key, value.TypeHash, mk)
	if v == nil || err != nil {
		return nil, err
	}
	return v.(*value.Hash), nil
}

// SetValue returns the set at key.
func (tx *Txn) SetValue(key string, create bool) (*value.Set, error) {
	var mk func() (value.Value, error)
	if create {
		mk = func() (value.Value, error) { return value.NewSet(), nil }
	}
	v, err := tx.typed(key, value.TypeSet, mk)
	if v == nil || err != nil {
		return nil, err
	}
	return v.(*value.Set), nil
}

// ZSet returns the sorted set at key.
func (tx *Txn) ZSet(key string, create bool) (*value.ZSet, error) {
	var mk func() (value.Value, error)
	if create {
		mk = func() (value.Value, error) { return value.NewZSet(), nil }
	}
	v, err := tx.typed(key, value.TypeZSet, mk)
	if v == nil || err != nil {
		return nil, err
	}
	return v.(*value.ZSet), nil
}

// Bloom returns the bloom filter at key, creating a default-sized filter
// when create is set.
func (tx *Txn) Bloom(key string, create bool) (*value.Bloom, error) {
	var mk func() (value.Value, error)
	if create {
		mk = func() (value.Value, error) {
			b, err := value.NewBloom(value.DefaultBloomCapacity, value.DefaultBloomErrorRate)
			if err != nil {
				return nil, err
			}
			return b, nil
		}
	}
	v, err := tx.typed(key, value.TypeBloom, mk)
	if v == nil || err != nil {
		return nil, err
	}
	return v.(*value.Bloom), nil
}

// commit drops emptied collections and journals dirty keys.
func (tx *Txn) commit() {
	if len(tx.dirty) == 0 {
		return
	}
	j := tx.db.getJournal()
	for key := range tx.dirty {
		s := tx.shard(key)
		e, ok := s.items[key]
		if ok {
			if c, isColl := e.Value.(value.Collection); isColl && c.Len() == 0 {
				s.deleteLocked(key)
				ok = false
			}
		}
		if j == nil {
			continue
		}
		if ok {
			j.JournalPut(key, EncodeRecord(key, e))
		} else {
			j.JournalDelete(key)
		}
	}
}
