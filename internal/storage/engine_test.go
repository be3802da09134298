package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/core/value"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
	"github.com/yndnr/tidekv/internal/storage/wal"
)

func testConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	cfg.SnapshotInterval = time.Hour
	cfg.WAL.FSync = wal.FSyncAlways
	cfg.Badger.SyncWrites = false
	cfg.Badger.GCInterval = time.Hour
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func openEngine(t *testing.T, cfg Config) (*keyspace.DB, *Engine, RecoveryStats) {
	t.Helper()
	db := keyspace.New(keyspace.WithShards(4))
	e, err := New(db, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stats, err := e.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	return db, e, stats
}

func set(t *testing.T, db *keyspace.DB, key, val string) {
	t.Helper()
	err := db.Update([]string{key}, func(tx *keyspace.Txn) error {
		tx.Set(key, value.NewString([]byte(val)), 0)
		return nil
	})
	if err != nil {
		t.Fatalf("Update %s: %v", key, err)
	}
}

func del(t *testing.T, db *keyspace.DB, key string) {
	t.Helper()
	_ = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		tx.Delete(key)
		return nil
	})
}

func get(db *keyspace.DB, key string) (string, bool) {
	var (
		out string
		ok  bool
	)
	_ = db.View([]string{key}, func(tx *keyspace.Txn) error {
		e, found := tx.Peek(key)
		if !found {
			return nil
		}
		s, isStr := e.Value.(*value.String)
		if isStr {
			out, ok = string(s.Bytes()), true
		}
		return nil
	})
	return out, ok
}

// ============================================================
// Construction
// ============================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/tidekv")
	if cfg.DataDir != "/tmp/tidekv" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.Backend != BackendFile || !cfg.WALEnabled || !cfg.SaveOnClose {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SnapshotInterval != DefaultSnapshotInterval {
		t.Errorf("SnapshotInterval = %v", cfg.SnapshotInterval)
	}
}

func TestNew_Validation(t *testing.T) {
	db := keyspace.New()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown backend", func(c *Config) { c.Backend = "tape" }},
		{"short key", func(c *Config) { c.Encryption.Key = []byte("short") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			tt.mutate(&cfg)
			if _, err := New(db, cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ============================================================
// Recovery
// ============================================================

func TestEngine_RecoverSnapshotAndWAL(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.SaveOnClose = false

	db, e, stats := openEngine(t, cfg)
	if stats.SnapshotID != "" || stats.Keys != 0 {
		t.Fatalf("fresh stats = %+v", stats)
	}

	set(t, db, "a", "1")
	set(t, db, "b", "2")
	info, err := e.Save(context.Background())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Changes after the snapshot live only in the WAL.
	set(t, db, "c", "3")
	set(t, db, "a", "one")
	del(t, db, "b")
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, e2, stats := openEngine(t, cfg)
	defer e2.Close(context.Background())

	if stats.SnapshotID != info.ID {
		t.Errorf("SnapshotID = %s, want %s", stats.SnapshotID, info.ID)
	}
	if stats.WALApplied != 3 {
		t.Errorf("WALApplied = %d, want 3", stats.WALApplied)
	}
	want := map[string]string{"a": "one", "c": "3"}
	for k, v := range want {
		if got, ok := get(db2, k); !ok || got != v {
			t.Errorf("%s = %q (%v), want %q", k, got, ok, v)
		}
	}
	if _, ok := get(db2, "b"); ok {
		t.Error("deleted key b was restored")
	}
	if db2.Len() != 2 {
		t.Errorf("Len = %d, want 2", db2.Len())
	}
}

func TestEngine_RecoverFlushFromWAL(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SaveOnClose = false

	db, e, _ := openEngine(t, cfg)
	set(t, db, "x", "1")
	db.Flush()
	set(t, db, "y", "2")
	e.Close(context.Background())

	db2, e2, _ := openEngine(t, cfg)
	defer e2.Close(context.Background())
	if _, ok := get(db2, "x"); ok {
		t.Error("flushed key x survived replay")
	}
	if got, _ := get(db2, "y"); got != "2" {
		t.Errorf("y = %q", got)
	}
}

func TestEngine_SaveOnClose(t *testing.T) {
	tests := []struct {
		name        string
		saveOnClose bool
		wantSnap    bool
	}{
		{"enabled", true, true},
		{"disabled", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			cfg.WALEnabled = false
			cfg.SaveOnClose = tt.saveOnClose

			db, e, _ := openEngine(t, cfg)
			set(t, db, "k", "v")
			if err := e.Close(context.Background()); err != nil {
				t.Fatalf("Close: %v", err)
			}

			db2, e2, stats := openEngine(t, cfg)
			defer e2.Close(context.Background())
			if got := stats.SnapshotID != ""; got != tt.wantSnap {
				t.Fatalf("snapshot written = %v, want %v", got, tt.wantSnap)
			}
			if _, ok := get(db2, "k"); ok != tt.wantSnap {
				t.Errorf("k restored = %v, want %v", ok, tt.wantSnap)
			}
		})
	}
}

func TestEngine_CloseWithoutRecoverDoesNotSave(t *testing.T) {
	cfg := testConfig(t.TempDir())
	db := keyspace.New()
	e, err := New(db, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// A late Recover must not start the background loop.
	if e.running.Load() {
		t.Error("engine marked running after Close")
	}
}

// ============================================================
// Saves
// ============================================================

func TestEngine_SaveInProgress(t *testing.T) {
	_, e, _ := openEngine(t, testConfig(t.TempDir()))
	defer e.Close(context.Background())

	e.saving.Store(true)
	if _, err := e.Save(context.Background()); !errors.Is(err, domain.ErrSaveInProgress) {
		t.Errorf("Save = %v, want ErrSaveInProgress", err)
	}
	if err := e.BackgroundSave(); !errors.Is(err, domain.ErrSaveInProgress) {
		t.Errorf("BackgroundSave = %v, want ErrSaveInProgress", err)
	}
	e.saving.Store(false)
}

func TestEngine_BackgroundSave(t *testing.T) {
	db, e, _ := openEngine(t, testConfig(t.TempDir()))
	defer e.Close(context.Background())

	set(t, db, "k", "v")
	if e.Status().ChangesSinceSave != 1 {
		t.Errorf("changes = %d, want 1", e.Status().ChangesSinceSave)
	}
	if err := e.BackgroundSave(); err != nil {
		t.Fatalf("BackgroundSave: %v", err)
	}
	e.saves.Wait()

	st := e.Status()
	if !st.LastSaveOK || st.LastSnapshot == nil || st.ChangesSinceSave != 0 {
		t.Errorf("status after save = %+v", st)
	}
	if e.LastSave().IsZero() {
		t.Error("LastSave is zero")
	}
	infos, err := e.Snapshots(context.Background())
	if err != nil || len(infos) != 1 {
		t.Errorf("Snapshots = %d, %v", len(infos), err)
	}
}

func TestEngine_SaveCompactsWAL(t *testing.T) {
	cfg := testConfig(t.TempDir())
	db, e, _ := openEngine(t, cfg)
	defer e.Close(context.Background())

	for i := 0; i < 3; i++ {
		set(t, db, "k", "v")
		if _, err := e.Save(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	n, err := e.compactor.FileCount()
	if err != nil {
		t.Fatal(err)
	}
	// The live segment plus wal.DefaultRetainCount older ones.
	if n > 1+wal.DefaultRetainCount {
		t.Errorf("wal files = %d after compaction", n)
	}
}

func TestEngine_AutoSnapshot(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.SnapshotInterval = 20 * time.Millisecond
	db, e, _ := openEngine(t, cfg)
	defer e.Close(context.Background())

	set(t, db, "k", "v")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Status().LastSnapshot != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background loop did not take a snapshot")
}

// ============================================================
// Backends and encryption
// ============================================================

func TestEngine_BadgerBackend(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Backend = BackendBadger
	cfg.SaveOnClose = false

	db, e, _ := openEngine(t, cfg)
	set(t, db, "k", "badger")
	if _, err := e.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if e.Status().Backend != BackendBadger {
		t.Errorf("backend = %s", e.Status().Backend)
	}
	e.Close(context.Background())

	db2, e2, stats := openEngine(t, cfg)
	defer e2.Close(context.Background())
	if stats.SnapshotID == "" {
		t.Error("no snapshot recovered from badger")
	}
	if got, _ := get(db2, "k"); got != "badger" {
		t.Errorf("k = %q", got)
	}
}

func TestEngine_EncryptedRoundTrip(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Encryption = snapshot.EncryptionConfig{Passphrase: []byte("a long passphrase")}
	cfg.SaveOnClose = false

	db, e, _ := openEngine(t, cfg)
	set(t, db, "snap", "1")
	if _, err := e.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	set(t, db, "wal", "2")
	if !e.Status().Encrypted {
		t.Error("Status.Encrypted = false")
	}
	e.Close(context.Background())

	db2, e2, _ := openEngine(t, cfg)
	e2.Close(context.Background())
	for k, v := range map[string]string{"snap": "1", "wal": "2"} {
		if got, _ := get(db2, k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	wrong := cfg
	wrong.Encryption = snapshot.EncryptionConfig{Passphrase: []byte("another passphrase")}
	e3, err := New(keyspace.New(), wrong)
	if err != nil {
		t.Fatal(err)
	}
	defer e3.Close(context.Background())
	if _, err := e3.Recover(context.Background()); err == nil {
		t.Error("Recover with wrong passphrase succeeded")
	}
}
