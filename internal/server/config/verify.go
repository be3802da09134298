// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Accepted enumerations.
var (
	validBackends   = []string{"file", "badger"}
	validFSync      = []string{"always", "everysec", "no"}
	validAlgorithms = []string{"", "aes-gcm", "chacha20-poly1305"}
	validLogLevels  = []string{"debug", "info", "warn", "warning", "error"}
	validLogFormats = []string{"json", "text"}
)

// Key material bounds, matching the storage encryption layer.
const (
	minEncryptionKeyLen = 16
	minPassphraseLen    = 8
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server, &cfg.Security); err != nil {
		return err
	}
	if cfg.Keyspace.Shards < 1 {
		return errors.New("keyspace.shards must be at least 1")
	}
	if err := VerifyExpiry(&cfg.Expiry); err != nil {
		return err
	}
	if err := verifyPersistence(&cfg.Persistence); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection, sec *SecuritySection) error {
	r := &cfg.RESP
	if r.Addr == "" && r.TLSAddr == "" {
		return errors.New("server.resp: addr or tls_addr is required")
	}
	for name, addr := range map[string]string{
		"server.resp.addr":     r.Addr,
		"server.resp.tls_addr": r.TLSAddr,
		"server.http.addr":     cfg.HTTP.Addr,
	} {
		if err := verifyAddr(name, addr); err != nil {
			return err
		}
	}
	if r.Addr != "" && r.Addr == r.TLSAddr {
		return errors.New("server.resp.tls_addr must differ from server.resp.addr")
	}
	if r.Addr != "" && r.Addr == cfg.HTTP.Addr {
		return errors.New("server.http.addr must differ from server.resp.addr")
	}
	if r.TLSAddr != "" && !sec.TLSEnabled() {
		return errors.New("server.resp.tls_addr requires security.tls_cert_file and security.tls_key_file")
	}

	switch {
	case r.MaxClients < 0:
		return errors.New("server.resp.max_clients must not be negative")
	case r.ReadTimeout < 0, r.WriteTimeout < 0, r.IdleTimeout < 0:
		return errors.New("server.resp timeouts must not be negative")
	case r.RateLimit < 0, r.RateBurst < 0:
		return errors.New("server.resp.rate_limit and rate_burst must not be negative")
	case r.OutboundHighWater < 0, r.OutboundLowWater < 0:
		return errors.New("server.resp outbound water marks must not be negative")
	case r.OutboundHighWater > 0 && r.OutboundLowWater > r.OutboundHighWater:
		return errors.New("server.resp.outbound_low_water must not exceed outbound_high_water")
	case r.ReadBufferSize < 0, r.MaxBulkLen < 0, r.MaxArrayLen < 0, r.MaxFrameLen < 0:
		return errors.New("server.resp buffer and frame limits must not be negative")
	case r.MaxFrameLen > 0 && r.MaxBulkLen > r.MaxFrameLen:
		return errors.New("server.resp.max_bulk_len must not exceed max_frame_len")
	case cfg.HTTP.RateLimit < 0, cfg.HTTP.RateBurst < 0:
		return errors.New("server.http.rate_limit and rate_burst must not be negative")
	}
	return nil
}

func verifyAddr(name, addr string) error {
	if addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: invalid address %q: %w", name, addr, err)
	}
	return nil
}

// VerifyExpiry validates the sweep tuning. It is also used on hot reload.
func VerifyExpiry(cfg *ExpirySection) error {
	switch {
	case cfg.Interval <= 0:
		return errors.New("expiry.interval must be positive")
	case cfg.SampleSize < 1:
		return errors.New("expiry.sample_size must be at least 1")
	case cfg.ResampleThreshold <= 0 || cfg.ResampleThreshold > 1:
		return errors.New("expiry.resample_threshold must be in (0, 1]")
	case cfg.MaxRounds < 1:
		return errors.New("expiry.max_rounds must be at least 1")
	case cfg.TimeBudget <= 0:
		return errors.New("expiry.time_budget must be positive")
	}
	return nil
}

func verifyPersistence(cfg *PersistenceSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("persistence.data_dir is required")
	}
	if !oneOf(cfg.Backend, validBackends) {
		return fmt.Errorf("persistence.backend %q is not one of %s", cfg.Backend, strings.Join(validBackends, ", "))
	}
	if cfg.Snapshot.Interval < 0 {
		return errors.New("persistence.snapshot.interval must not be negative")
	}
	if cfg.Snapshot.RetentionCount < 1 {
		return errors.New("persistence.snapshot.retention_count must be at least 1")
	}
	if cfg.WAL.Enabled && !oneOf(strings.ToLower(cfg.WAL.FSync), validFSync) {
		return fmt.Errorf("persistence.wal.fsync %q is not one of %s", cfg.WAL.FSync, strings.Join(validFSync, ", "))
	}
	if cfg.Badger.GCThreshold < 0 || cfg.Badger.GCThreshold >= 1 {
		return errors.New("persistence.badger.gc_threshold must be in [0, 1)")
	}

	// Check if data directory exists or can be created
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.EncryptionPassphrase != "" && len(cfg.EncryptionPassphrase) < minPassphraseLen {
		return fmt.Errorf("security.encryption_passphrase must be at least %d characters", minPassphraseLen)
	}
	if cfg.EncryptionPassphrase == "" && cfg.EncryptionKey != "" && len(cfg.EncryptionKey) < minEncryptionKeyLen {
		return fmt.Errorf("security.encryption_key must be at least %d bytes", minEncryptionKeyLen)
	}
	if !oneOf(cfg.EncryptionAlgorithm, validAlgorithms) {
		return fmt.Errorf("security.encryption_algorithm %q is not supported", cfg.EncryptionAlgorithm)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("security.tls_cert_file and tls_key_file must be set together")
	}
	if cfg.TLSClientCAFile != "" && !cfg.TLSEnabled() {
		return errors.New("security.tls_client_ca_file requires a server certificate")
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSClientCAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("security: %w", err)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !oneOf(strings.ToLower(cfg.Level), validLogLevels) {
		return fmt.Errorf("log.level %q is not one of %s", cfg.Level, strings.Join(validLogLevels, ", "))
	}
	if !oneOf(strings.ToLower(cfg.Format), validLogFormats) {
		return fmt.Errorf("log.format %q is not one of %s", cfg.Format, strings.Join(validLogFormats, ", "))
	}
	return nil
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
