package keyspace

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/tidekv/internal/core/value"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 64

// Entry is a stored value with its expiry and access metadata.
type Entry struct {
	Value value.Value

	// ExpireAt is the absolute expiry in Unix milliseconds. Zero means none.
	ExpireAt int64

	accessed atomic.Int64
}

// AccessedAt returns the last access time in Unix milliseconds.
func (e *Entry) AccessedAt() int64 {
	return e.accessed.Load()
}

func (e *Entry) expired(now int64) bool {
	return e.ExpireAt > 0 && e.ExpireAt <= now
}

// Journal receives every committed per-key state change. Calls are made
// while the key's shard lock is held, so per-key order is preserved.
type Journal interface {
	// JournalPut records the full encoded state of key.
	JournalPut(key string, record []byte)
	// JournalDelete records the removal of key.
	JournalDelete(key string)
	// JournalFlush records the removal of every key.
	JournalFlush()
}

type shard struct {
	mu       sync.RWMutex
	items    map[string]*Entry
	volatile map[string]struct{}
}

func newShard() *shard {
	return &shard{
		items:    make(map[string]*Entry),
		volatile: make(map[string]struct{}),
	}
}

// setLocked stores e under key, keeping the volatile index in sync.
func (s *shard) setLocked(key string, e *Entry) {
	s.items[key] = e
	if e.ExpireAt > 0 {
		s.volatile[key] = struct{}{}
	} else {
		delete(s.volatile, key)
	}
}

func (s *shard) deleteLocked(key string) bool {
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	delete(s.volatile, key)
	return true
}

// DB is a keyspace split into power-of-two shards, each guarded by its own
// RWMutex. A DB is safe for concurrent use.
type DB struct {
	shards []*shard
	mask   uint64
	now    func() time.Time

	journal atomic.Pointer[journalHolder]

	expired atomic.Uint64
}

type journalHolder struct{ j Journal }

// Option configures the DB.
type Option func(*DB)

// WithShards sets the shard count. Values that are not a power of two fall
// back to DefaultShardCount.
func WithShards(n int) Option {
	return func(db *DB) {
		if n <= 0 || n&(n-1) != 0 {
			n = DefaultShardCount
		}
		db.shards = make([]*shard, n)
	}
}

// WithClock sets the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// WithJournal attaches a journal at construction time.
func WithJournal(j Journal) Option {
	return func(db *DB) {
		db.SetJournal(j)
	}
}

// New creates an empty DB.
func New(opts ...Option) *DB {
	db := &DB{
		shards: make([]*shard, DefaultShardCount),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	for i := range db.shards {
		db.shards[i] = newShard()
	}
	db.mask = uint64(len(db.shards) - 1)
	return db
}

// SetJournal attaches or detaches (nil) the journal.
func (db *DB) SetJournal(j Journal) {
	if j == nil {
		db.journal.Store(nil)
		return
	}
	db.journal.Store(&journalHolder{j: j})
}

func (db *DB) getJournal() Journal {
	if h := db.journal.Load(); h != nil {
		return h.j
	}
	return nil
}

// Now returns the DB clock in Unix milliseconds.
func (db *DB) Now() int64 {
	return db.now().UnixMilli()
}

// ShardCount returns the number of shards.
func (db *DB) ShardCount() int {
	return len(db.shards)
}

// ExpiredTotal returns the number of keys removed because they expired.
func (db *DB) ExpiredTotal() uint64 {
	return db.expired.Load()
}

func (db *DB) shardIndex(key string) int {
	return int(murmur3.Sum64([]byte(key)) & db.mask)
}

// shardSet returns the distinct shard indexes of keys in ascending order.
func (db *DB) shardSet(keys []string) []int {
	idx := make([]int, 0, len(keys))
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		i := db.shardIndex(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// View runs fn with read access to keys. Shard locks are taken in ascending
// order so multi-key reads are consistent.
func (db *DB) View(keys []string, fn func(tx *Txn) error) error {
	idx := db.shardSet(keys)
	for _, i := range idx {
		db.shards[i].mu.RLock()
	}
	defer func() {
		for j := len(idx) - 1; j >= 0; j-- {
			db.shards[idx[j]].mu.RUnlock()
		}
	}()

	tx := db.newTxn(idx, false)
	return fn(tx)
}

// Update runs fn with write access to keys. All involved shards stay locked
// until fn returns, then emptied collections are removed and every changed
// key is journaled.
func (db *DB) Update(keys []string, fn func(tx *Txn) error) error {
	idx := db.shardSet(keys)
	for _, i := range idx {
		db.shards[i].mu.Lock()
	}
	defer func() {
		for j := len(idx) - 1; j >= 0; j-- {
			db.shards[idx[j]].mu.Unlock()
		}
	}()

	tx := db.newTxn(idx, true)
	defer tx.commit()
	return fn(tx)
}

// Len returns the number of live keys. Expired keys awaiting removal are
// not counted.
func (db *DB) Len() int {
	now := db.Now()
	n := 0
	for _, s := range db.shards {
		s.mu.RLock()
		n += len(s.items)
		for key := range s.volatile {
			if e := s.items[key]; e != nil && e.expired(now) {
				n--
			}
		}
		s.mu.RUnlock()
	}
	return n
}

// Stats is a point-in-time summary of the keyspace.
type Stats struct {
	Keys     int
	Volatile int
	Expired  uint64
}

// Stats returns key counts per category.
func (db *DB) Stats() Stats {
	st := Stats{Expired: db.expired.Load()}
	for _, s := range db.shards {
		s.mu.RLock()
		st.Keys += len(s.items)
		st.Volatile += len(s.volatile)
		s.mu.RUnlock()
	}
	return st
}

// Flush removes every key. All shards are locked at once so the flush is
// atomic with respect to other commands.
func (db *DB) Flush() {
	for _, s := range db.shards {
		s.mu.Lock()
	}
	for _, s := range db.shards {
		s.items = make(map[string]*Entry)
		s.volatile = make(map[string]struct{})
	}
	if j := db.getJournal(); j != nil {
		j.JournalFlush()
	}
	for i := len(db.shards) - 1; i >= 0; i-- {
		db.shards[i].mu.Unlock()
	}
}

// SampleExpired inspects up to n volatile keys of one shard and removes
// those past due. It returns how many keys were sampled and removed.
func (db *DB) SampleExpired(shardIdx, n int) (sampled, removed int) {
	s := db.shards[shardIdx&int(db.mask)]
	s.mu.Lock()
	defer s.mu.Unlock()

	now := db.Now()
	j := db.getJournal()
	// Map iteration order is randomized, which gives a cheap random sample.
	for key := range s.volatile {
		if sampled >= n {
			break
		}
		sampled++
		e := s.items[key]
		if e == nil {
			delete(s.volatile, key)
			continue
		}
		if e.expired(now) {
			s.deleteLocked(key)
			removed++
			if j != nil {
				j.JournalDelete(key)
			}
		}
	}
	db.expired.Add(uint64(removed))
	return sampled, removed
}
