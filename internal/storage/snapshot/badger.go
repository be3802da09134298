package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

// BackendBadger names the badger-based store.
const BackendBadger = "badger"

// Badger keys:
//
//	snap/<id>/meta         JSON badgerMeta
//	snap/<id>/chunk/<n>    n-th payload chunk, n big-endian uint32
const (
	keyPrefix        = "snap/"
	defaultChunkSize = 1 << 20
)

type badgerMeta struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	KeyCount  int64  `json:"key_count"`
	WALOffset uint64 `json:"wal_offset"`
	Encrypted bool   `json:"encrypted"`
	Size      int64  `json:"size"`
	Chunks    int    `json:"chunks"`
}

func (m *badgerMeta) info() *Info {
	return &Info{
		ID:        m.ID,
		Backend:   BackendBadger,
		WALOffset: m.WALOffset,
		KeyCount:  m.KeyCount,
		CreatedAt: m.CreatedAt,
		Size:      m.Size,
		Encrypted: m.Encrypted,
	}
}

func metaKey(id string) []byte { return []byte(keyPrefix + id + "/meta") }

func chunkKey(id string, n int) []byte {
	k := []byte(keyPrefix + id + "/chunk/")
	return binary.BigEndian.AppendUint32(k, uint32(n))
}

// BadgerConfig configures the badger snapshot store.
type BadgerConfig struct {
	Dir string

	RetentionCount int
	ChunkSize      int

	// GCInterval is how often value-log GC runs; GCThreshold is the
	// discard ratio passed to RunValueLogGC.
	GCInterval  time.Duration
	GCThreshold float64
	SyncWrites  bool

	Cipher adaptive.Cipher
	Logger *slog.Logger
}

// DefaultBadgerConfig returns defaults for dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		ChunkSize:      defaultChunkSize,
		GCInterval:     10 * time.Minute,
		GCThreshold:    0.5,
		SyncWrites:     true,
	}
}

// BadgerStore keeps snapshots inside a badger database, chunked so a
// large image never exceeds badger's transaction limits.
type BadgerStore struct {
	db  *badger.DB
	cfg BadgerConfig
	log *slog.Logger

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	doneCh chan struct{}

	lsmSize  prometheus.GaugeFunc
	vlogSize prometheus.GaugeFunc
	gcRuns   prometheus.Counter
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the badger database at cfg.Dir.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: badger dir is required")
	}
	def := DefaultBadgerConfig(cfg.Dir)
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = def.RetentionCount
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = def.GCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = def.GCThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(&badgerLogger{logger: cfg.Logger}).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open badger: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		log:    cfg.Logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		gcRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tidekv",
			Subsystem: "badger",
			Name:      "gc_runs_total",
			Help:      "Value log GC passes that rewrote a file.",
		}),
	}
	s.lsmSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tidekv",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes.",
	}, func() float64 { lsm, _ := s.db.Size(); return float64(lsm) })
	s.vlogSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tidekv",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes.",
	}, func() float64 { _, vlog := s.db.Size(); return float64(vlog) })

	go s.gcLoop()

	s.log.Info("badger snapshot store opened", "dir", cfg.Dir, "gc_interval", cfg.GCInterval)
	return s, nil
}

// Collectors exposes the store's metrics for registration.
func (s *BadgerStore) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.lsmSize, s.vlogSize, s.gcRuns}
}

// Save writes the snapshot chunks and then its meta record, so a snapshot
// without meta is invisible and is removed by the next Prune.
func (s *BadgerStore) Save(_ context.Context, data []byte, meta Meta) (*Info, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	now := time.Now()
	id := newID(now)

	payload, err := seal(s.cfg.Cipher, id, data)
	if err != nil {
		return nil, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	chunks := 0
	for off := 0; off < len(payload) || chunks == 0; off += s.cfg.ChunkSize {
		end := off + s.cfg.ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := wb.Set(chunkKey(id, chunks), payload[off:end]); err != nil {
			return nil, fmt.Errorf("snapshot: badger write chunk: %w", err)
		}
		chunks++
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("snapshot: badger flush: %w", err)
	}

	m := badgerMeta{
		ID:        id,
		CreatedAt: now.UnixMilli(),
		KeyCount:  int64(meta.KeyCount),
		WALOffset: meta.WALOffset,
		Encrypted: s.cfg.Cipher != nil,
		Size:      int64(len(payload)),
		Chunks:    chunks,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal meta: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(id), raw)
	}); err != nil {
		return nil, fmt.Errorf("snapshot: badger write meta: %w", err)
	}
	return m.info(), nil
}

// Load returns the newest complete snapshot.
func (s *BadgerStore) Load(_ context.Context) ([]byte, *Info, error) {
	if s.isClosed() {
		return nil, nil, ErrClosed
	}
	metas, err := s.metas()
	if err != nil {
		return nil, nil, err
	}
	for i := len(metas) - 1; i >= 0; i-- {
		m := metas[i]
		payload, err := s.readChunks(m)
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("skipping incomplete snapshot", "id", m.ID)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		data, err := open(s.cfg.Cipher, m.ID, payload, m.Encrypted)
		if err != nil {
			return nil, nil, err
		}
		return data, m.info(), nil
	}
	return nil, nil, ErrNoSnapshots
}

func (s *BadgerStore) readChunks(m *badgerMeta) ([]byte, error) {
	out := make([]byte, 0, m.Size)
	err := s.db.View(func(txn *badger.Txn) error {
		for n := 0; n < m.Chunks; n++ {
			item, err := txn.Get(chunkKey(m.ID, n))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(v []byte) error {
				out = append(out, v...)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if int64(len(out)) != m.Size {
		return nil, ErrNotFound
	}
	return out, nil
}

// metas returns every meta record, oldest first.
func (s *BadgerStore) metas() ([]*badgerMeta, error) {
	var out []*badgerMeta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) < 5 || string(key[len(key)-5:]) != "/meta" {
				continue
			}
			var m badgerMeta
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return fmt.Errorf("snapshot: decode meta %q: %w", key, err)
			}
			out = append(out, &m)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// List returns metadata of stored snapshots, oldest first.
func (s *BadgerStore) List(_ context.Context) ([]*Info, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	metas, err := s.metas()
	if err != nil {
		return nil, err
	}
	infos := make([]*Info, len(metas))
	for i, m := range metas {
		infos[i] = m.info()
	}
	return infos, nil
}

// Prune drops all but the newest RetentionCount snapshots.
func (s *BadgerStore) Prune(_ context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	metas, err := s.metas()
	if err != nil {
		return err
	}
	if len(metas) <= s.cfg.RetentionCount {
		return nil
	}
	doomed := metas[:len(metas)-s.cfg.RetentionCount]

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, m := range doomed {
		if err := wb.Delete(metaKey(m.ID)); err != nil {
			return err
		}
		for n := 0; n < m.Chunks; n++ {
			if err := wb.Delete(chunkKey(m.ID, n)); err != nil {
				return err
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("snapshot: badger prune: %w", err)
	}
	s.log.Info("pruned snapshots", "backend", BackendBadger, "count", len(doomed))
	return nil
}

// GC runs value-log garbage collection until badger reports nothing to
// rewrite. It returns the number of files rewritten.
func (s *BadgerStore) GC() (int, error) {
	runs := 0
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return runs, nil
		}
		if err != nil {
			return runs, fmt.Errorf("snapshot: badger gc: %w", err)
		}
		runs++
		s.gcRuns.Inc()
	}
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.GC(); err != nil {
				s.log.Error("badger gc failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *BadgerStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("snapshot: close badger: %w", err)
	}
	return nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
