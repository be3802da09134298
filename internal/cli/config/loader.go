package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tidekv", "cli.yaml")
}

// DefaultHistoryPath returns the default REPL history file path.
func DefaultHistoryPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tidekv", "history")
}

// Load loads CLI configuration from path. A missing file yields the
// defaults; unknown keys are rejected so typos surface.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cli config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse cli config %s: %w", path, err)
	}
	if cfg.Connections == nil {
		cfg.Connections = make(map[string]ConnectionConfig)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("cli config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions, since profiles may
// hold passwords.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode cli config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Validate checks field values.
func Validate(cfg *CLIConfig) error {
	switch cfg.Output {
	case "", "raw", "json", "yaml":
	default:
		return fmt.Errorf("output must be raw, json or yaml, got %q", cfg.Output)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if cfg.CurrentConnection != "" {
		if _, ok := cfg.Connections[cfg.CurrentConnection]; !ok {
			return &UnknownProfileError{Name: cfg.CurrentConnection}
		}
	}
	for name, c := range cfg.Connections {
		if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
			return fmt.Errorf("connection %q: tls cert_file and key_file must be set together", name)
		}
	}
	return nil
}

// Merge overrides cfg with TIDEKV_CLI_* environment variables and then
// with explicitly set flags. Recognized keys: server, admin, output,
// timeout, history.
func Merge(cfg *CLIConfig, env map[string]string, flags map[string]string) (*CLIConfig, error) {
	out := *cfg
	apply := func(key, val string) error {
		switch key {
		case "server":
			out.Server = val
		case "admin":
			out.Admin = val
		case "output":
			out.Output = val
		case "history":
			out.History = val
		case "timeout":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("timeout: %w", err)
			}
			out.Timeout = d
		}
		return nil
	}
	for _, key := range []string{"server", "admin", "output", "timeout", "history"} {
		if v, ok := env[envName(key)]; ok && v != "" {
			if err := apply(key, v); err != nil {
				return nil, err
			}
		}
	}
	for key, v := range flags {
		if err := apply(key, v); err != nil {
			return nil, err
		}
	}
	return &out, Validate(&out)
}

// Environ returns the TIDEKV_CLI_* variables of the current process.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, key := range []string{"server", "admin", "output", "timeout", "history"} {
		if v, ok := os.LookupEnv(envName(key)); ok {
			env[envName(key)] = v
		}
	}
	return env
}

func envName(key string) string {
	return "TIDEKV_CLI_" + string(bytes.ToUpper([]byte(key)))
}
