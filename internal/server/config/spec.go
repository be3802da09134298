// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for tidekv-server.
type ServerConfig struct {
	Server      ServerSection      `koanf:"server"`
	Keyspace    KeyspaceSection    `koanf:"keyspace"`
	Expiry      ExpirySection      `koanf:"expiry"`
	Persistence PersistenceSection `koanf:"persistence"`
	Security    SecuritySection    `koanf:"security"`
	Log         LogSection         `koanf:"log"`
}

// ServerSection configures the listeners.
type ServerSection struct {
	RESP RESPConfig `koanf:"resp"`
	HTTP HTTPConfig `koanf:"http"`
}

// RESPConfig configures the client protocol server.
type RESPConfig struct {
	Addr string `koanf:"addr"`

	// TLSAddr is a second listener speaking RESP over TLS. It requires
	// security.tls_cert_file and security.tls_key_file.
	TLSAddr string `koanf:"tls_addr"`

	MaxClients   int           `koanf:"max_clients"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// RateLimit is commands per second per client IP; 0 disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	RequirePass string `koanf:"requirepass"`

	OutboundHighWater int `koanf:"outbound_high_water"`
	OutboundLowWater  int `koanf:"outbound_low_water"`
	ReadBufferSize    int `koanf:"read_buffer_size"`

	MaxBulkLen  int `koanf:"max_bulk_len"`
	MaxArrayLen int `koanf:"max_array_len"`
	MaxFrameLen int `koanf:"max_frame_len"`
}

// HTTPConfig configures the admin HTTP server.
type HTTPConfig struct {
	// Addr is empty to disable the admin server.
	Addr string `koanf:"addr"`

	// RateLimit is requests per second across the admin API; 0 disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// KeyspaceSection configures the in-memory store.
type KeyspaceSection struct {
	Shards int `koanf:"shards"`
}

// ExpirySection tunes the active expiry sweep.
type ExpirySection struct {
	Interval          time.Duration `koanf:"interval"`
	SampleSize        int           `koanf:"sample_size"`
	ResampleThreshold float64       `koanf:"resample_threshold"`
	MaxRounds         int           `koanf:"max_rounds"`
	TimeBudget        time.Duration `koanf:"time_budget"`
}

// PersistenceSection configures snapshots and the write-ahead log.
type PersistenceSection struct {
	Enabled bool   `koanf:"enabled"`
	DataDir string `koanf:"data_dir"`

	// Backend is "file" or "badger".
	Backend string `koanf:"backend"`

	SaveOnClose bool `koanf:"save_on_close"`

	Snapshot SnapshotConfig `koanf:"snapshot"`
	WAL      WALConfig      `koanf:"wal"`
	Badger   BadgerConfig   `koanf:"badger"`
}

// SnapshotConfig controls automatic snapshots and their retention.
type SnapshotConfig struct {
	Interval       time.Duration `koanf:"interval"`
	MinChanges     int64         `koanf:"min_changes"`
	RetentionCount int           `koanf:"retention_count"`
	RetentionDays  int           `koanf:"retention_days"`
}

// WALConfig controls the write-ahead log.
type WALConfig struct {
	Enabled bool `koanf:"enabled"`

	// FSync is "always", "everysec" or "no".
	FSync          string        `koanf:"fsync"`
	SyncInterval   time.Duration `koanf:"sync_interval"`
	MaxSegmentSize int64         `koanf:"max_segment_size"`
}

// BadgerConfig tunes the badger snapshot backend.
type BadgerConfig struct {
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes"`
}

// SecuritySection configures encryption at rest and TLS material.
type SecuritySection struct {
	// EncryptionKey or EncryptionPassphrase enables encryption of snapshots
	// and WAL segments. The passphrase wins when both are set.
	EncryptionKey        string `koanf:"encryption_key"`
	EncryptionPassphrase string `koanf:"encryption_passphrase"`
	EncryptionAlgorithm  string `koanf:"encryption_algorithm"`

	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// TLSClientCAFile turns on client certificate verification.
	TLSClientCAFile string `koanf:"tls_client_ca_file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TLSEnabled reports whether certificate material is configured.
func (s SecuritySection) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}
