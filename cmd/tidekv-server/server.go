package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yndnr/tidekv/internal/core/command"
	"github.com/yndnr/tidekv/internal/infra/buildinfo"
	"github.com/yndnr/tidekv/internal/infra/confloader"
	"github.com/yndnr/tidekv/internal/infra/shutdown"
	"github.com/yndnr/tidekv/internal/infra/tlsroots"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/server/config"
	"github.com/yndnr/tidekv/internal/server/httpserver"
	"github.com/yndnr/tidekv/internal/server/httpserver/handler"
	"github.com/yndnr/tidekv/internal/server/respserver"
	"github.com/yndnr/tidekv/internal/storage"
	"github.com/yndnr/tidekv/internal/storage/expire"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
	"github.com/yndnr/tidekv/internal/storage/wal"
	"github.com/yndnr/tidekv/internal/telemetry/logger"
	"github.com/yndnr/tidekv/internal/telemetry/metric"
)

// slowlogThreshold is the command latency above which the dispatcher logs
// a warning.
const slowlogThreshold = 10 * time.Millisecond

// server holds the running components and the current configuration.
type server struct {
	loader *confloader.Loader
	log    *slog.Logger

	mu  sync.RWMutex
	cfg *config.ServerConfig

	metrics *metric.Metrics
	db      *keyspace.DB
	engine  *storage.Engine
	sweeper *expire.Sweeper
	resp    *respserver.Server
	router  *httpserver.Router
	http    *httpserver.Server
	watcher *confloader.Watcher

	// tlsConfig is shared by the RESP and HTTP TLS listeners.
	tlsConfig *tls.Config
}

func run(ctx context.Context, configFile string, overrides map[string]any) error {
	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	cfg, err := loadConfig(loader)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	log.Info("starting tidekv-server",
		"version", buildinfo.String("tidekv-server"),
		"config", loader.FilePath(),
	)

	s := &server{loader: loader, log: log, cfg: cfg}
	sh := shutdown.NewHandler(shutdown.DefaultTimeout, shutdown.WithLogger(log))
	if err := s.start(ctx, sh); err != nil {
		// Unwind whatever already started.
		sh.Trigger("startup failed")
		if werr := sh.Wait(context.Background()); werr != nil {
			log.Error("cleanup after failed startup", "error", werr)
		}
		return err
	}

	log.Info("server started")
	if err := sh.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads and validates a configuration on top of the defaults.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// start brings components up in dependency order. Each one registers its
// shutdown hook right after it starts, so hooks run in reverse order.
func (s *server) start(ctx context.Context, sh *shutdown.Handler) error {
	cfg := s.cfg
	s.metrics = metric.New()

	s.db = keyspace.New(keyspace.WithShards(cfg.Keyspace.Shards))
	s.metrics.MustRegister(metric.NewKeyspaceCollector(func() metric.KeyspaceStats {
		st := s.db.Stats()
		return metric.KeyspaceStats{Keys: st.Keys, Volatile: st.Volatile, Expired: st.Expired}
	}))

	if cfg.Persistence.Enabled {
		if err := s.startStorage(ctx, sh); err != nil {
			return err
		}
	}

	sweeper, err := expire.New(s.db, expiryConfig(cfg.Expiry),
		expire.WithLogger(s.log),
		expire.WithObserver(func(r expire.Result) {
			s.metrics.ObserveSweep(r.Sampled, r.Removed)
		}),
	)
	if err != nil {
		return fmt.Errorf("init expiry: %w", err)
	}
	s.sweeper = sweeper
	sweeper.Start()
	sh.OnShutdown("expiry", func(context.Context) error {
		sweeper.Stop()
		return nil
	})

	if err := s.startRESP(ctx, sh); err != nil {
		return err
	}
	if err := s.startHTTP(sh); err != nil {
		return err
	}
	if err := s.watchConfig(sh); err != nil {
		return err
	}

	s.router.SetReady(true)
	return nil
}

func (s *server) startStorage(ctx context.Context, sh *shutdown.Handler) error {
	scfg, err := storageConfig(s.cfg, s.log)
	if err != nil {
		return err
	}
	scfg.OnSnapshot = s.metrics.ObserveSnapshot

	engine, err := storage.New(s.db, scfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	sh.OnShutdown("storage", engine.Close)
	s.engine = engine

	if bs, ok := engine.Store().(*snapshot.BadgerStore); ok {
		s.metrics.MustRegister(bs.Collectors()...)
	}

	stats, err := engine.Recover(ctx)
	if err != nil {
		return fmt.Errorf("storage recovery: %w", err)
	}
	s.log.Info("storage recovered",
		"snapshot_id", stats.SnapshotID,
		"snapshot_keys", stats.SnapshotKeys,
		"wal_applied", stats.WALApplied,
		"keys", stats.Keys,
		"elapsed", stats.Elapsed,
	)
	return nil
}

func (s *server) startRESP(ctx context.Context, sh *shutdown.Handler) error {
	cfg := s.cfg
	disp := command.New(s.db,
		command.WithLogger(s.log),
		command.WithObserver(s.metrics.ObserveCommand),
		command.WithSlowLog(slowlogThreshold),
	)

	rcfg := respserver.Config{
		Address:           cfg.Server.RESP.Addr,
		TLSAddress:        cfg.Server.RESP.TLSAddr,
		MaxClients:        cfg.Server.RESP.MaxClients,
		ReadTimeout:       cfg.Server.RESP.ReadTimeout,
		WriteTimeout:      cfg.Server.RESP.WriteTimeout,
		IdleTimeout:       cfg.Server.RESP.IdleTimeout,
		RateLimit:         cfg.Server.RESP.RateLimit,
		RateBurst:         cfg.Server.RESP.RateBurst,
		RequirePass:       cfg.Server.RESP.RequirePass,
		OutboundHighWater: cfg.Server.RESP.OutboundHighWater,
		OutboundLowWater:  cfg.Server.RESP.OutboundLowWater,
		ReadBufferSize:    cfg.Server.RESP.ReadBufferSize,
		Limits: resp.Limits{
			MaxArrayLen:  cfg.Server.RESP.MaxArrayLen,
			MaxBulkLen:   cfg.Server.RESP.MaxBulkLen,
			MaxInlineLen: resp.DefaultLimits().MaxInlineLen,
			MaxFrameLen:  cfg.Server.RESP.MaxFrameLen,
		},
	}
	if cfg.Security.TLSEnabled() {
		tlsCfg, certs, err := tlsroots.NewServerConfig(tlsroots.ServerOptions{
			CertFile:     cfg.Security.TLSCertFile,
			KeyFile:      cfg.Security.TLSKeyFile,
			ClientCAFile: cfg.Security.TLSClientCAFile,
			Logger:       s.log,
		})
		if err != nil {
			return fmt.Errorf("init tls: %w", err)
		}
		certs.StartAsync()
		sh.OnShutdown("tls-watcher", func(context.Context) error {
			certs.Stop()
			return nil
		})
		s.tlsConfig = tlsCfg
		rcfg.TLSConfig = tlsCfg
	}

	opts := []respserver.Option{
		respserver.WithLogger(s.log),
		respserver.WithMetrics(s.metrics),
	}
	if s.engine != nil {
		opts = append(opts, respserver.WithPersistence(s.engine))
	}
	srv, err := respserver.New(rcfg, disp, opts...)
	if err != nil {
		return fmt.Errorf("init resp server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start resp server: %w", err)
	}
	sh.OnShutdown("resp", srv.Shutdown)
	s.resp = srv
	return nil
}

func (s *server) startHTTP(sh *shutdown.Handler) error {
	cfg := s.cfg
	if cfg.Server.HTTP.Addr == "" {
		// The router still exists so readiness can be flipped.
		s.router = httpserver.NewRouter(httpserver.RouterConfig{Deps: handler.Deps{Keyspace: s.db}})
		return nil
	}

	deps := handler.Deps{
		Keyspace: s.db,
		Clients:  s.resp,
		Config:   s.currentConfig,
	}
	if s.engine != nil {
		deps.Persistence = s.engine
	}
	s.router = httpserver.NewRouter(httpserver.RouterConfig{
		Deps:      deps,
		Metrics:   s.metrics.Handler(),
		Password:  cfg.Server.RESP.RequirePass,
		RateLimit: cfg.Server.HTTP.RateLimit,
		RateBurst: cfg.Server.HTTP.RateBurst,
		Logger:    s.log,
	})

	hcfg := httpserver.Config{Addr: cfg.Server.HTTP.Addr}
	if s.tlsConfig != nil {
		// Same certificate watcher as the RESP TLS listener.
		hcfg.TLSConfig = s.tlsConfig.Clone()
	}

	srv := httpserver.New(hcfg, s.router, s.log.With("component", "httpserver"))
	if err := srv.Start(); err != nil {
		return err
	}
	sh.OnShutdown("http", srv.Shutdown)
	s.http = srv
	return nil
}

// watchConfig reloads the configuration file when it changes.
func (s *server) watchConfig(sh *shutdown.Handler) error {
	path := s.loader.FilePath()
	if path == "" {
		return nil
	}
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(s.log))
	if err != nil {
		return fmt.Errorf("init config watcher: %w", err)
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return fmt.Errorf("watch config: %w", err)
	}
	w.OnChange(func(string) {
		err := s.reload()
		s.metrics.ConfigReloaded(err)
		if err != nil {
			s.log.Error("config reload failed, keeping previous configuration", "error", err)
		}
	})
	w.StartAsync()
	sh.OnShutdown("config-watcher", func(context.Context) error {
		return w.Stop()
	})
	s.watcher = w
	return nil
}

// reload applies the hot-reloadable subset of a changed configuration.
// Other changes are reported and wait for a restart.
func (s *server) reload() error {
	next, err := loadConfig(s.loader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.cfg
	s.mu.Unlock()

	old, cur := prev.Reloadable(), next.Reloadable()
	var errs []error
	if cur.LogLevel != old.LogLevel {
		if err := logger.SetLevel(cur.LogLevel); err != nil {
			errs = append(errs, err)
		}
	}
	if cur.Expiry != old.Expiry {
		if err := s.sweeper.Reconfigure(expiryConfig(cur.Expiry)); err != nil {
			errs = append(errs, err)
		}
	}
	if cur.RateLimit != old.RateLimit || cur.RateBurst != old.RateBurst {
		s.resp.SetRateLimit(cur.RateLimit, cur.RateBurst)
	}
	if cur.HTTPRateLimit != old.HTTPRateLimit || cur.HTTPRateBurst != old.HTTPRateBurst {
		s.router.SetRateLimit(cur.HTTPRateLimit, cur.HTTPRateBurst)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if changed := config.RestartRequired(prev, next); len(changed) > 0 {
		s.log.Warn("configuration changes require a restart", "sections", changed)
		// Keep serving the running values for sections a reload cannot apply.
		merged := *prev
		merged.Log.Level = next.Log.Level
		merged.Expiry = next.Expiry
		merged.Server.RESP.RateLimit, merged.Server.RESP.RateBurst = next.Server.RESP.RateLimit, next.Server.RESP.RateBurst
		merged.Server.HTTP.RateLimit, merged.Server.HTTP.RateBurst = next.Server.HTTP.RateLimit, next.Server.HTTP.RateBurst
		next = &merged
	}

	s.mu.Lock()
	s.cfg = next
	s.mu.Unlock()
	s.log.Info("configuration reloaded", "loads", s.loader.Loads())
	return nil
}

func (s *server) currentConfig() *config.ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func expiryConfig(e config.ExpirySection) expire.Config {
	return expire.Config{
		Interval:          e.Interval,
		SampleSize:        e.SampleSize,
		ResampleThreshold: e.ResampleThreshold,
		MaxRounds:         e.MaxRounds,
		TimeBudget:        e.TimeBudget,
	}
}

// storageConfig translates the persistence section into an engine config.
func storageConfig(cfg *config.ServerConfig, log *slog.Logger) (storage.Config, error) {
	p := cfg.Persistence
	sc := storage.DefaultConfig(p.DataDir)
	sc.Backend = p.Backend
	sc.SaveOnClose = p.SaveOnClose
	sc.Logger = log

	sc.SnapshotInterval = p.Snapshot.Interval
	sc.MinChanges = p.Snapshot.MinChanges
	sc.Snapshot.RetentionCount = p.Snapshot.RetentionCount
	sc.Snapshot.RetentionDays = p.Snapshot.RetentionDays
	sc.Badger.RetentionCount = p.Snapshot.RetentionCount

	sc.Badger.GCInterval = p.Badger.GCInterval
	sc.Badger.GCThreshold = p.Badger.GCThreshold
	sc.Badger.SyncWrites = p.Badger.SyncWrites

	sc.WALEnabled = p.WAL.Enabled
	fsync, err := wal.ParseFSyncPolicy(p.WAL.FSync)
	if err != nil {
		return storage.Config{}, fmt.Errorf("persistence.wal.fsync: %w", err)
	}
	sc.WAL.FSync = fsync
	sc.WAL.SyncInterval = p.WAL.SyncInterval
	sc.WAL.MaxSegmentSize = p.WAL.MaxSegmentSize

	sec := cfg.Security
	sc.Encryption = snapshot.EncryptionConfig{
		Key:        []byte(sec.EncryptionKey),
		Passphrase: []byte(sec.EncryptionPassphrase),
		Algorithm:  sec.EncryptionAlgorithm,
	}
	return sc, nil
}
