package repl

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewHistory(t *testing.T) {
	h := NewHistory("", 0)
	if h.maxSize != DefaultHistorySize {
		t.Errorf("maxSize = %d, want %d", h.maxSize, DefaultHistorySize)
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d", h.Len())
	}
}

func TestHistory_Add(t *testing.T) {
	h := NewHistory("", 3)
	for _, line := range []string{"GET a", "GET a", "  ", "auth pw", "AUTH pw", "SET b 1", "GET a", "DEL b"} {
		h.Add(line)
	}
	want := []string{"SET b 1", "GET a", "DEL b"}
	if got := h.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %q, want %q", got, want)
	}

	tests := []struct {
		index int
		want  string
	}{
		{0, "DEL b"},
		{2, "SET b 1"},
		{3, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := h.Get(tt.index); got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestHistory_SaveLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sub", "history")
	h := NewHistory(file, 100)
	h.Add("SET a 1")
	h.Add("GET a")
	if err := h.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fi, err := os.Stat(file)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", fi.Mode().Perm())
	}

	loaded := NewHistory(file, 1)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Entries(); !reflect.DeepEqual(got, []string{"GET a"}) {
		t.Errorf("entries = %q", got)
	}
}

func TestHistory_LoadMissing(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "none"), 10)
	if err := h.Load(); err != nil {
		t.Errorf("Load missing file: %v", err)
	}
}
