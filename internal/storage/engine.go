package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
	"github.com/yndnr/tidekv/internal/storage/wal"
	"github.com/yndnr/tidekv/internal/telemetry/logger"
	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

// Snapshot backends.
const (
	BackendFile   = snapshot.BackendFile
	BackendBadger = snapshot.BackendBadger
)

// Default configuration values.
const (
	DefaultSnapshotInterval = 5 * time.Minute
	DefaultMinChanges       = 1
	DefaultWALDir           = "wal"
	DefaultSnapshotDir      = "snapshots"
	DefaultBadgerDir        = "badger"
	DefaultSaltFile         = "encryption.salt"
)

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// Backend selects the snapshot store: "file" or "badger".
	Backend string

	Snapshot snapshot.Config
	Badger   snapshot.BadgerConfig

	// WALEnabled turns on the journal of per-key changes between snapshots.
	WALEnabled bool
	WAL        wal.Config

	// SnapshotInterval is how often the background loop considers a save.
	// A save happens only when at least MinChanges writes were journaled
	// since the previous one. Zero disables automatic snapshots.
	SnapshotInterval time.Duration
	MinChanges       int64

	// SaveOnClose takes a final snapshot during Close.
	SaveOnClose bool

	Encryption snapshot.EncryptionConfig

	Logger *slog.Logger

	// OnSnapshot, if set, is called after every snapshot attempt.
	OnSnapshot func(elapsed time.Duration, size int64, err error)
}

// DefaultConfig returns the default storage configuration rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		Backend:          BackendFile,
		Snapshot:         snapshot.DefaultConfig(filepath.Join(dataDir, DefaultSnapshotDir)),
		Badger:           snapshot.DefaultBadgerConfig(filepath.Join(dataDir, DefaultBadgerDir)),
		WALEnabled:       true,
		WAL:              wal.DefaultConfig(filepath.Join(dataDir, DefaultWALDir)),
		SnapshotInterval: DefaultSnapshotInterval,
		MinChanges:       DefaultMinChanges,
		SaveOnClose:      true,
		Logger:           slog.Default(),
	}
}

// RecoveryStats summarizes what Recover restored.
type RecoveryStats struct {
	SnapshotID   string
	SnapshotKeys int64
	WALApplied   int
	WALSkipped   int
	Keys         int
	Elapsed      time.Duration
}

// Status is a point-in-time view of the engine, served by INFO and the
// admin API.
type Status struct {
	Backend          string         `json:"backend"`
	WALEnabled       bool           `json:"wal_enabled"`
	Encrypted        bool           `json:"encrypted"`
	Saving           bool           `json:"saving"`
	LastSave         int64          `json:"last_save"`
	LastSaveOK       bool           `json:"last_save_ok"`
	ChangesSinceSave int64          `json:"changes_since_save"`
	JournalErrors    uint64         `json:"journal_errors"`
	LastSnapshot     *snapshot.Info `json:"last_snapshot,omitempty"`
	WAL              *wal.Stats     `json:"wal,omitempty"`
}

// Engine makes a keyspace durable: it journals committed changes to the
// WAL, writes periodic snapshots, and rebuilds the keyspace on start.
type Engine struct {
	cfg Config
	db  *keyspace.DB

	store     snapshot.Store
	wal       *wal.Writer
	compactor *wal.Compactor
	walCipher adaptive.Cipher
	encrypted bool

	logger *slog.Logger

	saving        atomic.Bool
	lastSave      atomic.Int64
	lastSaveOK    atomic.Bool
	lastInfo      atomic.Pointer[snapshot.Info]
	changes       atomic.Int64
	journalErrors atomic.Uint64
	journalLogged atomic.Bool

	running   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	saves     sync.WaitGroup
}

// New creates a storage engine for db. It opens the snapshot store and the
// WAL but does not touch the keyspace: call Recover next.
func New(db *keyspace.DB, cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinChanges <= 0 {
		cfg.MinChanges = DefaultMinChanges
	}
	if cfg.Encryption.Enabled() && cfg.Encryption.SaltFile == "" {
		cfg.Encryption.SaltFile = filepath.Join(cfg.DataDir, DefaultSaltFile)
	}

	snapCipher, walCipher, err := snapshot.NewCiphers(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("storage: encryption: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		db:        db,
		logger:    cfg.Logger.With("component", "storage"),
		walCipher: walCipher,
		encrypted: snapCipher != nil,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	switch cfg.Backend {
	case "", BackendFile:
		sc := cfg.Snapshot
		sc.Cipher = snapCipher
		e.store, err = snapshot.NewManager(sc)
	case BackendBadger:
		bc := cfg.Badger
		bc.Cipher = snapCipher
		bc.Logger = e.logger
		e.store, err = snapshot.NewBadgerStore(bc)
	default:
		err = fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: create snapshot store: %w", err)
	}

	if cfg.WALEnabled {
		wc := cfg.WAL
		wc.Cipher = walCipher
		e.wal, err = wal.NewWriter(wc)
		if err != nil {
			e.store.Close()
			return nil, fmt.Errorf("storage: create wal writer: %w", err)
		}
		e.compactor = wal.NewCompactor(wc.Dir)
	}
	return e, nil
}

// Store exposes the snapshot store, e.g. to register its metrics.
func (e *Engine) Store() snapshot.Store { return e.store }

// Recover loads the newest snapshot, replays the WAL written after it,
// then attaches the journal and starts the background snapshot loop.
func (e *Engine) Recover(ctx context.Context) (RecoveryStats, error) {
	var stats RecoveryStats
	start := time.Now()
	e.logger.Info("storage recovery started", "backend", e.backendName(), "wal", e.wal != nil)

	data, info, err := e.store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshots):
		e.logger.Info("no snapshot found, starting with empty keyspace")
	case err != nil:
		return stats, fmt.Errorf("storage: load snapshot: %w", err)
	default:
		if err := e.db.Restore(data); err != nil {
			return stats, fmt.Errorf("storage: restore snapshot %s: %w", info.ID, err)
		}
		stats.SnapshotID = info.ID
		stats.SnapshotKeys = info.KeyCount
		e.lastInfo.Store(info)
		e.lastSave.Store(info.CreatedAt)
		e.lastSaveOK.Store(true)
		e.logger.Info("snapshot loaded",
			"id", info.ID,
			"keys", info.KeyCount,
			"wal_offset", info.WALOffset,
			"elapsed", time.Since(start))
	}

	if e.wal != nil {
		var from uint64
		if info != nil {
			from = info.WALOffset
		}
		stats.WALApplied, stats.WALSkipped, err = wal.Replay(e.cfg.WAL.Dir, e.walCipher, from, e.apply)
		if err != nil {
			return stats, fmt.Errorf("storage: replay wal: %w", err)
		}
		if stats.WALSkipped > 0 {
			e.logger.Warn("wal replay skipped damaged segments", "count", stats.WALSkipped)
		}
		e.changes.Store(int64(stats.WALApplied))
	}

	stats.Keys = e.db.Len()
	stats.Elapsed = time.Since(start)
	e.logger.Info("storage recovery completed",
		"keys", stats.Keys,
		"wal_applied", stats.WALApplied,
		"elapsed", stats.Elapsed)

	e.startOnce.Do(func() {
		e.db.SetJournal(e)
		e.running.Store(true)
		go e.backgroundLoop()
	})
	return stats, nil
}

// apply installs one replayed WAL entry.
func (e *Engine) apply(entry *wal.Entry) error {
	switch entry.OpType {
	case wal.OpTypePut:
		if err := e.db.ApplyRecord(entry.Record); err != nil {
			return fmt.Errorf("apply put %q: %w", entry.Key, err)
		}
	case wal.OpTypeDelete:
		e.db.ApplyDelete(entry.Key)
	case wal.OpTypeFlush:
		e.db.Flush()
	default:
		return fmt.Errorf("unknown wal op %d", entry.OpType)
	}
	return nil
}

// ============================================================================
// keyspace.Journal
// ============================================================================

// JournalPut implements keyspace.Journal.
func (e *Engine) JournalPut(key string, record []byte) {
	e.journal(wal.NewPutEntry(key, record))
}

// JournalDelete implements keyspace.Journal.
func (e *Engine) JournalDelete(key string) {
	e.journal(wal.NewDeleteEntry(key))
}

// JournalFlush implements keyspace.Journal.
func (e *Engine) JournalFlush() {
	e.journal(wal.NewFlushEntry())
}

// journal runs under the key's shard lock, so it must not block on
// anything that takes keyspace locks. Without a WAL it only counts changes
// for the snapshot policy.
func (e *Engine) journal(entry *wal.Entry) {
	e.changes.Add(1)
	if e.wal == nil {
		return
	}
	if err := e.wal.Append(entry); err != nil {
		e.journalErrors.Add(1)
		// Log the first failure of a streak only; the counter tracks the rest.
		if e.journalLogged.CompareAndSwap(false, true) {
			e.logger.Error("wal append failed", "op", entry.OpType.String(), "error", err)
		}
		return
	}
	e.journalLogged.Store(false)
}

// ============================================================================
// Snapshots
// ============================================================================

// Save writes a snapshot synchronously. It fails with
// domain.ErrSaveInProgress while another save runs.
func (e *Engine) Save(ctx context.Context) (*snapshot.Info, error) {
	if !e.saving.CompareAndSwap(false, true) {
		return nil, domain.ErrSaveInProgress
	}
	defer e.saving.Store(false)
	return e.save(ctx)
}

// BackgroundSave starts a snapshot and returns immediately.
func (e *Engine) BackgroundSave() error {
	if !e.saving.CompareAndSwap(false, true) {
		return domain.ErrSaveInProgress
	}
	e.saves.Add(1)
	go func() {
		defer e.saves.Done()
		defer e.saving.Store(false)
		if _, err := e.save(context.Background()); err != nil {
			e.logger.Error("background save failed", "error", err)
		}
	}()
	return nil
}

func (e *Engine) save(ctx context.Context) (*snapshot.Info, error) {
	start := time.Now()
	info, err := e.takeSnapshot(ctx)
	if e.cfg.OnSnapshot != nil {
		var size int64
		if info != nil {
			size = info.Size
		}
		e.cfg.OnSnapshot(time.Since(start), size, err)
	}
	return info, err
}

func (e *Engine) takeSnapshot(ctx context.Context) (*snapshot.Info, error) {
	start := time.Now()

	var (
		offset   uint64
		cpErr    error
		baseline int64
	)
	data := e.db.SnapshotWith(func() {
		baseline = e.changes.Load()
		if e.wal != nil {
			offset, cpErr = e.wal.Checkpoint()
		}
	})
	if cpErr != nil {
		e.lastSaveOK.Store(false)
		return nil, fmt.Errorf("storage: wal checkpoint: %w", cpErr)
	}

	info, err := e.store.Save(ctx, data, snapshot.Meta{KeyCount: e.db.Len(), WALOffset: offset})
	if err != nil {
		e.lastSaveOK.Store(false)
		return nil, fmt.Errorf("storage: save snapshot: %w", err)
	}

	e.changes.Add(-baseline)
	e.lastInfo.Store(info)
	e.lastSave.Store(info.CreatedAt)
	e.lastSaveOK.Store(true)

	logger.Enrich(ctx, e.logger).Info("snapshot created",
		"id", info.ID,
		"keys", info.KeyCount,
		"wal_offset", info.WALOffset,
		"size_bytes", info.Size,
		"elapsed", time.Since(start))

	if err := e.store.Prune(ctx); err != nil {
		e.logger.Warn("snapshot prune failed", "error", err)
	}
	if e.compactor != nil {
		if n, err := e.compactor.Compact(offset); err != nil {
			e.logger.Warn("wal compaction failed", "error", err)
		} else if n > 0 {
			e.logger.Debug("wal segments compacted", "removed", n)
		}
	}
	return info, nil
}

// Snapshots lists stored snapshots, oldest first.
func (e *Engine) Snapshots(ctx context.Context) ([]*snapshot.Info, error) {
	return e.store.List(ctx)
}

// LastSave returns the time of the last successful snapshot, or the zero
// time if there has been none.
func (e *Engine) LastSave() time.Time {
	ms := e.lastSave.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Status returns engine counters.
func (e *Engine) Status() Status {
	st := Status{
		Backend:          e.backendName(),
		WALEnabled:       e.wal != nil,
		Encrypted:        e.encrypted,
		Saving:           e.saving.Load(),
		LastSave:         e.lastSave.Load(),
		LastSaveOK:       e.lastSaveOK.Load(),
		ChangesSinceSave: e.changes.Load(),
		JournalErrors:    e.journalErrors.Load(),
		LastSnapshot:     e.lastInfo.Load(),
	}
	if e.wal != nil {
		ws := e.wal.Stats()
		st.WAL = &ws
	}
	return st
}

func (e *Engine) backendName() string {
	if e.cfg.Backend == "" {
		return BackendFile
	}
	return e.cfg.Backend
}

// backgroundLoop snapshots on an interval when enough has changed.
func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)
	if e.cfg.SnapshotInterval <= 0 {
		<-e.stopCh
		return
	}

	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if e.changes.Load() < e.cfg.MinChanges {
				continue
			}
			if err := e.BackgroundSave(); err != nil && !errors.Is(err, domain.ErrSaveInProgress) {
				e.logger.Error("auto snapshot failed", "error", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

// Close stops background work, optionally takes a final snapshot, detaches
// the journal and closes the WAL and the snapshot store.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")

		// Block a late Recover from starting the loop.
		e.startOnce.Do(func() {})
		close(e.stopCh)
		running := e.running.Load()
		if running {
			select {
			case <-e.doneCh:
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
			}
		}
		e.saves.Wait()

		// Never save a keyspace that was not recovered: it would shadow
		// the snapshot it failed to load.
		if running && e.cfg.SaveOnClose && e.changes.Load() > 0 {
			if _, err := e.Save(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		e.db.SetJournal(nil)
		if e.wal != nil {
			if err := e.wal.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close wal: %w", err))
			}
		}
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close snapshot store: %w", err))
		}
		e.logger.Info("storage engine shutdown complete")
	})
	return errors.Join(errs...)
}
