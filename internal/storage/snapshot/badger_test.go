package snapshot

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

func newBadgerStore(t *testing.T, mutate func(*BadgerConfig)) *BadgerStore {
	t.Helper()
	cfg := DefaultBadgerConfig(t.TempDir())
	cfg.GCInterval = time.Hour
	cfg.SyncWrites = false
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewBadgerStore(cfg)
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerStore_SaveLoadChunked(t *testing.T) {
	ctx := context.Background()
	s := newBadgerStore(t, func(cfg *BadgerConfig) { cfg.ChunkSize = 7 })

	if _, _, err := s.Load(ctx); !errors.Is(err, ErrNoSnapshots) {
		t.Fatalf("Load on empty store = %v", err)
	}

	data := bytes.Repeat([]byte("0123456789"), 10)
	info, err := s.Save(ctx, data, Meta{KeyCount: 5, WALOffset: 3 << 32})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info.Backend != BackendBadger || info.Size != int64(len(data)) {
		t.Errorf("info = %+v", info)
	}

	got, loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("data mismatch: got %d bytes", len(got))
	}
	if loaded.KeyCount != 5 || loaded.WALOffset != 3<<32 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestBadgerStore_EmptyImage(t *testing.T) {
	ctx := context.Background()
	s := newBadgerStore(t, nil)
	if _, err := s.Save(ctx, nil, Meta{}); err != nil {
		t.Fatal(err)
	}
	got, _, err := s.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("Load = %q, %v", got, err)
	}
}

func TestBadgerStore_SkipsIncomplete(t *testing.T) {
	ctx := context.Background()
	s := newBadgerStore(t, func(cfg *BadgerConfig) { cfg.ChunkSize = 4 })

	if _, err := s.Save(ctx, []byte("first image"), Meta{}); err != nil {
		t.Fatal(err)
	}
	second, err := s.Save(ctx, []byte("second image"), Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(second.ID, 1))
	}); err != nil {
		t.Fatal(err)
	}

	got, info, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "first image" || info.ID == second.ID {
		t.Errorf("Load = %q (%s), want fallback", got, info.ID)
	}
}

func TestBadgerStore_EncryptedAndPrune(t *testing.T) {
	ctx := context.Background()
	s := newBadgerStore(t, func(cfg *BadgerConfig) {
		cfg.Cipher = testCipher(t, 3)
		cfg.RetentionCount = 2
	})

	for _, img := range []string{"a", "b", "c"} {
		if _, err := s.Save(ctx, []byte(img), Meta{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	infos, err := s.List(ctx)
	if err != nil || len(infos) != 2 {
		t.Fatalf("List = %d, %v", len(infos), err)
	}
	for _, info := range infos {
		if !info.Encrypted {
			t.Errorf("%s not marked encrypted", info.ID)
		}
	}
	got, _, err := s.Load(ctx)
	if err != nil || string(got) != "c" {
		t.Errorf("Load = %q, %v", got, err)
	}
}

func TestBadgerStore_CollectorsAndClose(t *testing.T) {
	s := newBadgerStore(t, nil)

	reg := prometheus.NewRegistry()
	for _, c := range s.Collectors() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if _, err := s.GC(); err != nil {
		t.Errorf("GC: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Save(context.Background(), []byte("x"), Meta{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Save after Close = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
