// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultRESPAddr          = "127.0.0.1:6379"
	DefaultHTTPAddr          = "127.0.0.1:6380"
	DefaultMaxClients        = 10000
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultOutboundHighWater = 8 << 20
	DefaultOutboundLowWater  = 1 << 20
	DefaultReadBufferSize    = 16 << 10
	DefaultMaxBulkLen        = 512 << 10
	DefaultMaxArrayLen       = 1024
	DefaultMaxFrameLen       = 16 << 20

	DefaultShards = 64

	DefaultExpiryInterval    = 100 * time.Millisecond
	DefaultSampleSize        = 20
	DefaultResampleThreshold = 0.25
	DefaultMaxRounds         = 16
	DefaultTimeBudget        = 25 * time.Millisecond

	DefaultDataDir          = "/var/lib/tidekv"
	DefaultBackend          = "file"
	DefaultSnapshotInterval = 5 * time.Minute
	DefaultMinChanges       = 1
	DefaultRetentionCount   = 5
	DefaultRetentionDays    = 7
	DefaultWALFSync         = "everysec"
	DefaultWALSyncInterval  = time.Second
	DefaultWALSegmentSize   = 64 << 20
	DefaultBadgerGCInterval = 10 * time.Minute
	DefaultBadgerGCRatio    = 0.5

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			RESP: RESPConfig{
				Addr:              DefaultRESPAddr,
				MaxClients:        DefaultMaxClients,
				ReadTimeout:       DefaultReadTimeout,
				WriteTimeout:      DefaultWriteTimeout,
				IdleTimeout:       DefaultIdleTimeout,
				OutboundHighWater: DefaultOutboundHighWater,
				OutboundLowWater:  DefaultOutboundLowWater,
				ReadBufferSize:    DefaultReadBufferSize,
				MaxBulkLen:        DefaultMaxBulkLen,
				MaxArrayLen:       DefaultMaxArrayLen,
				MaxFrameLen:       DefaultMaxFrameLen,
			},
			HTTP: HTTPConfig{
				Addr: DefaultHTTPAddr,
			},
		},
		Keyspace: KeyspaceSection{
			Shards: DefaultShards,
		},
		Expiry: ExpirySection{
			Interval:          DefaultExpiryInterval,
			SampleSize:        DefaultSampleSize,
			ResampleThreshold: DefaultResampleThreshold,
			MaxRounds:         DefaultMaxRounds,
			TimeBudget:        DefaultTimeBudget,
		},
		Persistence: PersistenceSection{
			Enabled:     true,
			DataDir:     DefaultDataDir,
			Backend:     DefaultBackend,
			SaveOnClose: true,
			Snapshot: SnapshotConfig{
				Interval:       DefaultSnapshotInterval,
				MinChanges:     DefaultMinChanges,
				RetentionCount: DefaultRetentionCount,
				RetentionDays:  DefaultRetentionDays,
			},
			WAL: WALConfig{
				Enabled:        true,
				FSync:          DefaultWALFSync,
				SyncInterval:   DefaultWALSyncInterval,
				MaxSegmentSize: DefaultWALSegmentSize,
			},
			Badger: BadgerConfig{
				GCInterval:  DefaultBadgerGCInterval,
				GCThreshold: DefaultBadgerGCRatio,
				SyncWrites:  true,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
