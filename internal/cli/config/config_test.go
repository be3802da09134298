package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server != "127.0.0.1:6379" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.Output != "raw" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Connections == nil {
		t.Error("Connections should not be nil")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(Default()) = %v", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if !filepath.IsAbs(path) {
		t.Errorf("path %q should be absolute", path)
	}
	if filepath.Base(filepath.Dir(path)) != ".tidekv" || filepath.Base(path) != "cli.yaml" {
		t.Errorf("path = %q", path)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != Default().Server {
		t.Error("should return default config for a missing file")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "cli.yaml")

	cfg := Default()
	cfg.Output = "json"
	cfg.Timeout = 5 * time.Second
	cfg.Connections["prod"] = ConnectionConfig{
		Server:   "kv.example.com:6380",
		Password: "s3cret",
		TLS:      TLSConfig{Enabled: true, CAFile: "/etc/ca.pem"},
	}
	cfg.CurrentConnection = "prod"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Output != "json" || got.Timeout != 5*time.Second {
		t.Errorf("output/timeout = %s/%v", got.Output, got.Timeout)
	}
	prod := got.Connections["prod"]
	if prod.Server != "kv.example.com:6380" || !prod.TLS.Enabled || prod.Password != "s3cret" {
		t.Errorf("prod = %+v", prod)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "sever: 127.0.0.1:6379\n"},
		{"bad output", "output: table\n"},
		{"missing current", "current_connection: nope\n"},
		{"bad yaml", "server: [\n"},
		{"half tls pair", "connections:\n  a:\n    server: x:1\n    tls:\n      enabled: true\n      cert_file: c.pem\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cli.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != Default().Server {
		t.Errorf("Server = %q", cfg.Server)
	}
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.Connections["dev"] = ConnectionConfig{Password: "pw"}
	cfg.Connections["prod"] = ConnectionConfig{Server: "prod:6379", Admin: "https://prod:6380"}

	tests := []struct {
		name       string
		current    string
		profile    string
		wantServer string
		wantErr    bool
	}{
		{"defaults", "", "", "127.0.0.1:6379", false},
		{"explicit", "", "prod", "prod:6379", false},
		{"inherits server", "", "dev", "127.0.0.1:6379", false},
		{"current", "prod", "", "prod:6379", false},
		{"flag beats current", "prod", "dev", "127.0.0.1:6379", false},
		{"unknown", "", "qa", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.CurrentConnection = tt.current
			got, err := cfg.Resolve(tt.profile)
			if tt.wantErr {
				var upe *UnknownProfileError
				if !errors.As(err, &upe) {
					t.Fatalf("err = %v, want UnknownProfileError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.Server != tt.wantServer {
				t.Errorf("Server = %q, want %q", got.Server, tt.wantServer)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"TIDEKV_CLI_SERVER":  "env:6379",
		"TIDEKV_CLI_OUTPUT":  "yaml",
		"TIDEKV_CLI_TIMEOUT": "2s",
	}
	flags := map[string]string{"output": "json"}

	got, err := Merge(cfg, env, flags)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got.Server != "env:6379" {
		t.Errorf("Server = %q", got.Server)
	}
	if got.Output != "json" {
		t.Errorf("Output = %q, flag should win", got.Output)
	}
	if got.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v", got.Timeout)
	}
	if cfg.Server != "127.0.0.1:6379" {
		t.Error("Merge modified its input")
	}

	if _, err := Merge(cfg, map[string]string{"TIDEKV_CLI_TIMEOUT": "soon"}, nil); err == nil {
		t.Error("expected timeout parse error")
	}
	if _, err := Merge(cfg, nil, map[string]string{"output": "table"}); err == nil {
		t.Error("expected output validation error")
	}
}
