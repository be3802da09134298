package confloader

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		RESP struct {
			Addr        string        `koanf:"addr"`
			MaxClients  int           `koanf:"max_clients"`
			IdleTimeout time.Duration `koanf:"idle_timeout"`
		} `koanf:"resp"`
	} `koanf:"server"`
	Persistence struct {
		DataDir string `koanf:"data_dir"`
		Enabled bool   `koanf:"enabled"`
	} `koanf:"persistence"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tidekv.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/path/to/config.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.FilePath() != "/path/to/config.yaml" {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  resp:
    addr: "0.0.0.0:6379"
    max_clients: 10
    idle_timeout: 90s
persistence:
  data_dir: /tmp/tidekv
`)

	var cfg testConfig
	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RESP.Addr != "0.0.0.0:6379" {
		t.Errorf("Addr = %q", cfg.Server.RESP.Addr)
	}
	if cfg.Server.RESP.MaxClients != 10 {
		t.Errorf("MaxClients = %d", cfg.Server.RESP.MaxClients)
	}
	if cfg.Server.RESP.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.Server.RESP.IdleTimeout)
	}
	if cfg.Persistence.DataDir != "/tmp/tidekv" {
		t.Errorf("DataDir = %q", cfg.Persistence.DataDir)
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	var cfg testConfig
	if err := NewLoader(WithConfigFile("/nonexistent/config.yaml")).Load(&cfg); err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoader_NilTarget(t *testing.T) {
	if err := NewLoader().Load(nil); !errors.Is(err, ErrNilTarget) {
		t.Errorf("Load(nil) error = %v, want ErrNilTarget", err)
	}
}

func TestLoader_KeepsDefaults(t *testing.T) {
	path := writeFile(t, "server:\n  resp:\n    max_clients: 5\n")

	var cfg testConfig
	cfg.Server.RESP.Addr = "127.0.0.1:6379"
	cfg.Persistence.Enabled = true

	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RESP.Addr != "127.0.0.1:6379" || !cfg.Persistence.Enabled {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Server.RESP.MaxClients != 5 {
		t.Errorf("MaxClients = %d, want 5", cfg.Server.RESP.MaxClients)
	}
}

func TestLoader_Env(t *testing.T) {
	t.Setenv("TIDEKV_SERVER__RESP__ADDR", "127.0.0.1:7000")
	t.Setenv("TIDEKV_PERSISTENCE__DATA_DIR", "/data")
	t.Setenv("TIDEKV_PERSISTENCE__ENABLED", "true")

	var cfg testConfig
	l := NewLoader()
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RESP.Addr != "127.0.0.1:7000" {
		t.Errorf("Addr = %q", cfg.Server.RESP.Addr)
	}
	if cfg.Persistence.DataDir != "/data" {
		t.Errorf("DataDir = %q, want /data", cfg.Persistence.DataDir)
	}
	if !cfg.Persistence.Enabled {
		t.Error("Enabled should be true")
	}
	if got := l.String("persistence.data_dir"); got != "/data" {
		t.Errorf("String(persistence.data_dir) = %q", got)
	}
}

func TestLoader_EnvKey(t *testing.T) {
	l := NewLoader()
	tests := []struct {
		in, want string
	}{
		{"TIDEKV_LOG__LEVEL", "log.level"},
		{"TIDEKV_SERVER__RESP__MAX_CLIENTS", "server.resp.max_clients"},
		{"TIDEKV_KEYSPACE", "keyspace"},
	}
	for _, tt := range tests {
		if got := l.envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoader_Priority(t *testing.T) {
	path := writeFile(t, `
server:
  resp:
    addr: "from-file:1"
    max_clients: 1
persistence:
  data_dir: from-file
`)
	t.Setenv("TIDEKV_SERVER__RESP__ADDR", "from-env:2")
	t.Setenv("TIDEKV_SERVER__RESP__MAX_CLIENTS", "2")

	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"server.resp.addr": "from-flag:3"}),
	)

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"flag over env", cfg.Server.RESP.Addr, "from-flag:3"},
		{"env over file", cfg.Server.RESP.MaxClients, 2},
		{"file only", cfg.Persistence.DataDir, "from-file"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeFile(t, "server:\n  resp:\n    max_clients: 5\n")
	l := NewLoader(WithConfigFile(path))

	defaults := func() *testConfig {
		c := &testConfig{}
		c.Server.RESP.MaxClients = 100
		return c
	}

	cfg := defaults()
	if err := l.Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RESP.MaxClients != 5 {
		t.Fatalf("MaxClients = %d, want 5", cfg.Server.RESP.MaxClients)
	}

	// The key disappears from the file: the default comes back.
	if err := os.WriteFile(path, []byte("persistence:\n  enabled: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg = defaults()
	if err := l.Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RESP.MaxClients != 100 {
		t.Errorf("MaxClients = %d, want default 100", cfg.Server.RESP.MaxClients)
	}
	if l.Get("server.resp.max_clients") != nil {
		t.Error("stale key survived reload")
	}
	if l.Loads() != 2 {
		t.Errorf("Loads() = %d, want 2", l.Loads())
	}
}

func TestLoader_Overrides_Nested(t *testing.T) {
	l := NewLoader(WithOverrides(map[string]any{
		"server.resp.addr":        "x:1",
		"server.resp.max_clients": 3,
	}))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RESP.Addr != "x:1" || cfg.Server.RESP.MaxClients != 3 {
		t.Errorf("cfg = %+v", cfg.Server.RESP)
	}

	keys := l.Keys()
	for _, want := range []string{"server.resp.addr", "server.resp.max_clients"} {
		if !slices.Contains(keys, want) {
			t.Errorf("Keys() = %v, missing %s", keys, want)
		}
	}
}

func TestMapProvider(t *testing.T) {
	p := mapProvider{"a.b": 1}
	if _, err := p.ReadBytes(); !errors.Is(err, ErrReadBytesNotSupported) {
		t.Errorf("ReadBytes() error = %v", err)
	}
	m, err := p.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	inner, ok := m["a"].(map[string]any)
	if !ok || inner["b"] != 1 {
		t.Errorf("Read() = %v", m)
	}
}
