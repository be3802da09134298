package keyspace

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/yndnr/tidekv/internal/core/value"
)

func populate(t *testing.T, db *DB) {
	t.Helper()
	keys := []string{"s", "l", "h", "set", "z", "bf", "ttl"}
	err := db.Update(keys, func(tx *Txn) error {
		tx.Set("s", value.NewString([]byte("hello")), 0)

		l, _ := tx.List("l", true)
		l.PushBack([]byte("a"))
		l.PushBack([]byte("b"))

		h, _ := tx.Hash("h", true)
		h.Set([]byte("f"), []byte("v"))

		s, _ := tx.SetValue("set", true)
		s.Add([]byte("m1"))
		s.Add([]byte("m2"))

		z, _ := tx.ZSet("z", true)
		z.Add([]byte("one"), 1, value.ZAddFlags{})
		z.Add([]byte("two"), 2.5, value.ZAddFlags{})

		b, _ := tx.Bloom("bf", true)
		b.Add([]byte("item"))

		tx.Set("ttl", value.NewString([]byte("x")), tx.Now()+60_000)
		return nil
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	clock := newFakeClock()
	src := New(WithClock(clock.Now))
	populate(t, src)

	data := src.Snapshot()

	dst := New(WithShards(4), WithClock(clock.Now))
	setString(t, dst, "stale", "gone", 0)
	if err := dst.Restore(data); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if dst.Len() != src.Len() {
		t.Fatalf("Len() = %d, want %d", dst.Len(), src.Len())
	}
	if _, ok := getString(t, dst, "stale"); ok {
		t.Error("Restore() should replace existing keys")
	}

	_ = dst.View([]string{"s", "l", "h", "set", "z", "bf", "ttl"}, func(tx *Txn) error {
		if s, _ := tx.String("s"); s == nil || string(s.Bytes()) != "hello" {
			t.Errorf("string = %v", s)
		}
		if l, _ := tx.List("l", false); l == nil || fmt.Sprint(listStrings(l.All())) != "[a b]" {
			t.Errorf("list mismatch")
		}
		if h, _ := tx.Hash("h", false); h == nil {
			t.Error("hash missing")
		} else if v, _ := h.Get([]byte("f")); string(v) != "v" {
			t.Errorf("hash field = %q", v)
		}
		if s, _ := tx.SetValue("set", false); s == nil || s.Len() != 2 {
			t.Error("set mismatch")
		}
		if z, _ := tx.ZSet("z", false); z == nil {
			t.Error("zset missing")
		} else if sc, _ := z.Score([]byte("two")); sc != 2.5 {
			t.Errorf("zset score = %v, want 2.5", sc)
		}
		if b, _ := tx.Bloom("bf", false); b == nil || !b.Exists([]byte("item")) {
			t.Error("bloom lost its item")
		}
		if e, ok := tx.Peek("ttl"); !ok || e.ExpireAt != clock.Now().UnixMilli()+60_000 {
			t.Errorf("ttl entry = %+v", e)
		}
		return nil
	})
	if st := dst.Stats(); st.Volatile != 1 {
		t.Errorf("Volatile = %d, want 1", st.Volatile)
	}
}

func TestRestore_SkipsExpired(t *testing.T) {
	clock := newFakeClock()
	src := New(WithClock(clock.Now))
	setString(t, src, "k", "v", clock.Now().Add(time.Second).UnixMilli())
	data := src.Snapshot()

	clock.Advance(time.Minute)
	dst := New(WithClock(clock.Now))
	if err := dst.Restore(data); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if st := dst.Stats(); st.Keys != 0 {
		t.Errorf("Keys = %d, want 0", st.Keys)
	}
}

func TestRestore_Corrupt(t *testing.T) {
	db := New()
	setString(t, db, "keep", "me", 0)

	tests := []struct {
		name string
		data []byte
	}{
		{"missing version", []byte{}},
		{"truncated", New().Snapshot()[:1]},
		{"bad record", append(New().Snapshot(), 0x12, 0x02, 0xff, 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Restore(tt.data)
			if !errors.Is(err, ErrCorruptRecord) {
				t.Errorf("Restore() error = %v, want ErrCorruptRecord", err)
			}
			if got, ok := getString(t, db, "keep"); !ok || got != "me" {
				t.Error("failed Restore() must leave the keyspace unchanged")
			}
		})
	}
}

func TestApplyRecord(t *testing.T) {
	src := New()
	setString(t, src, "k", "v1", 0)
	var rec []byte
	_ = src.View([]string{"k"}, func(tx *Txn) error {
		e, _ := tx.Peek("k")
		rec = EncodeRecord("k", e)
		return nil
	})

	dst := New()
	setString(t, dst, "k", "old", 0)
	// Replaying the same record twice is harmless.
	for i := 0; i < 2; i++ {
		if err := dst.ApplyRecord(rec); err != nil {
			t.Fatalf("ApplyRecord() error = %v", err)
		}
	}
	if got, _ := getString(t, dst, "k"); got != "v1" {
		t.Errorf("k = %q, want v1", got)
	}

	dst.ApplyDelete("k")
	if dst.Len() != 0 {
		t.Error("ApplyDelete() should remove the key")
	}
}

func listStrings(items [][]byte) []string {
	out := make([]string, len(items))
	for i, b := range items {
		out[i] = string(b)
	}
	return out
}

func TestSnapshotWith_WritesDuringMark(t *testing.T) {
	db := New(WithShards(4))
	setString(t, db, "before", "1", 0)

	data := db.SnapshotWith(func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = db.Update([]string{"during"}, func(tx *Txn) error {
				tx.Set("during", value.NewString([]byte("2")), 0)
				return nil
			})
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("write blocked while the snapshot mark ran")
		}
	})

	dst := New(WithShards(4))
	if err := dst.Restore(data); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	for key, want := range map[string]string{"before": "1", "during": "2"} {
		if got, ok := getString(t, dst, key); !ok || got != want {
			t.Errorf("%s = %q, %v; want %q", key, got, ok, want)
		}
	}
}
