package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("Get() has empty fields: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestGet_LDFlagsWin(t *testing.T) {
	oldV, oldC, oldT := Version, Commit, BuildTime
	defer func() { Version, Commit, BuildTime = oldV, oldC, oldT }()

	Version, Commit, BuildTime = "v1.2.3", "abc123", "2026-01-01T00:00:00Z"
	info := Get()
	if info.Version != "v1.2.3" || info.Commit != "abc123" || info.BuildTime != "2026-01-01T00:00:00Z" {
		t.Errorf("Get() = %+v", info)
	}
}

func TestString(t *testing.T) {
	oldC := Commit
	defer func() { Commit = oldC }()
	Commit = "0123456789abcdef0123"

	s := String("tidekv-server")
	if !strings.HasPrefix(s, "tidekv-server ") {
		t.Errorf("String() = %q, want binary name prefix", s)
	}
	if !strings.Contains(s, "(0123456789ab") {
		t.Errorf("String() = %q, want shortened commit", s)
	}
	if strings.Contains(s, "0123456789abcdef") {
		t.Errorf("String() = %q, commit not shortened", s)
	}
}
