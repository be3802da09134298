package respserver

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/tidekv/internal/core/command"
	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
	"github.com/yndnr/tidekv/internal/telemetry/metric"
)

// Persistence is the part of the storage engine served by SAVE, BGSAVE,
// LASTSAVE and INFO.
type Persistence interface {
	Save(ctx context.Context) (*snapshot.Info, error)
	BackgroundSave() error
	LastSave() time.Time
	Status() storage.Status
}

// Stats are server-wide connection counters.
type Stats struct {
	ConnectedClients    int   `json:"connected_clients"`
	TotalConnections    int64 `json:"total_connections"`
	RejectedConnections int64 `json:"rejected_connections"`
	TotalCommands       int64 `json:"total_commands"`
	UptimeSeconds       int64 `json:"uptime_seconds"`
}

// Server accepts RESP clients and executes their commands against the
// dispatcher's keyspace.
type Server struct {
	cfg     Config
	disp    *command.Dispatcher
	persist Persistence
	metrics *metric.Metrics
	logger  *slog.Logger
	limiter *ipLimiter
	started time.Time

	mu    sync.Mutex
	conns map[int64]*Conn
	lns   []net.Listener

	nextID   atomic.Int64
	total    atomic.Int64
	rejected atomic.Int64
	commands atomic.Int64
	running  atomic.Bool
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithPersistence enables SAVE, BGSAVE and LASTSAVE.
func WithPersistence(p Persistence) Option {
	return func(s *Server) {
		s.persist = p
	}
}

// WithMetrics records connection and traffic metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a server. Call Start to listen.
func New(cfg Config, disp *command.Dispatcher, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	s := &Server{
		cfg:     cfg,
		disp:    disp,
		logger:  slog.Default(),
		limiter: newIPLimiter(cfg.RateLimit, cfg.RateBurst),
		conns:   make(map[int64]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "respserver")
	return s, nil
}

// Start opens the listeners and serves clients in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("respserver: already started")
	}
	s.started = time.Now()

	if s.cfg.Address != "" {
		ln, err := net.Listen("tcp", s.cfg.Address)
		if err != nil {
			s.running.Store(false)
			return err
		}
		s.serve(ctx, ln, "plain")
	}
	if s.cfg.TLSAddress != "" {
		ln, err := tls.Listen("tcp", s.cfg.TLSAddress, s.cfg.TLSConfig)
		if err != nil {
			s.running.Store(false)
			s.closeListeners()
			return err
		}
		s.serve(ctx, ln, "tls")
	}
	return nil
}

func (s *Server) serve(ctx context.Context, ln net.Listener, kind string) {
	s.mu.Lock()
	s.lns = append(s.lns, ln)
	s.mu.Unlock()

	s.logger.Info("resp server listening", "address", ln.Addr().String(), "transport", kind)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil {
			s.logger.Error("resp accept loop failed", "transport", kind, "error", err)
		}
	}()
}

// Addr returns the address of the first listener, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lns) == 0 {
		return nil
	}
	return s.lns[0].Addr()
}

// SetRateLimit changes the per-IP command rate. Zero disables limiting.
func (s *Server) SetRateLimit(perSecond float64, burst int) {
	if perSecond > 0 && burst <= 0 {
		burst = max(int(perSecond), 1)
	}
	s.limiter.setLimit(perSecond, burst)
	s.logger.Info("rate limit updated", "per_second", perSecond, "burst", burst)
}

// Stats returns connection counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.conns)
	s.mu.Unlock()
	st := Stats{
		ConnectedClients:    n,
		TotalConnections:    s.total.Load(),
		RejectedConnections: s.rejected.Load(),
		TotalCommands:       s.commands.Load(),
	}
	if !s.started.IsZero() {
		st.UptimeSeconds = int64(time.Since(s.started) / time.Second)
	}
	return st
}

// Shutdown stops accepting, asks every connection to finish its current
// command and waits for them. Connections still open when ctx expires are
// closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.logger.Info("shutting down resp server")
	err := s.closeListeners()

	s.mu.Lock()
	for _, c := range s.conns {
		c.kill.Store(true)
		_ = c.netConn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		for _, c := range s.conns {
			c.out.fail()
			_ = c.netConn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
	s.logger.Info("resp server shutdown complete")
	return err
}

func (s *Server) closeListeners() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, ln := range s.lns {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			// Transient failures such as EMFILE: back off and retry.
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		c, ok := s.register(nc)
		if !ok {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

// register admits a new connection unless max_clients is reached.
func (s *Server) register(nc net.Conn) (*Conn, bool) {
	s.mu.Lock()
	if s.cfg.MaxClients > 0 && len(s.conns) >= s.cfg.MaxClients {
		s.mu.Unlock()
		s.rejected.Add(1)
		s.metrics.ConnRejected("max_clients")
		s.logger.Warn("connection rejected", "remote", nc.RemoteAddr().String(), "reason", "max_clients")
		_ = nc.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = nc.Write(resp.Encode(resp.Err(domain.ErrMaxClients)))
		_ = nc.Close()
		return nil, false
	}
	c := newConn(s.nextID.Add(1), nc)
	s.conns[c.id] = c
	s.mu.Unlock()

	s.total.Add(1)
	s.metrics.ConnOpened()
	return c, true
}

func (s *Server) release(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.metrics.ConnClosed()
}

// clients returns every open connection ordered by ID.
func (s *Server) clients() []*Conn {
	s.mu.Lock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ============================================================================
// Connection loop
// ============================================================================

func (s *Server) serveConn(c *Conn) {
	defer s.release(c)
	log := s.logger.With("conn_id", c.connID, "remote", c.RemoteAddr().String())
	log.Debug("connection accepted", "client_id", c.id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(c, log)
	}()

	reason := s.readLoop(c, log)

	c.setState(StateClosing)
	c.out.close()
	<-writerDone
	_ = c.netConn.Close()
	c.setState(StateClosed)
	log.Debug("connection closed", "reason", reason, "commands", c.commands.Load())
}

// readLoop decodes and executes commands until the connection must close,
// and returns why.
func (s *Server) readLoop(c *Conn, log *slog.Logger) string {
	buf := make([]byte, s.cfg.ReadBufferSize)
	var pending []byte
	c.setState(StateReadingCommand)

	for {
		if c.kill.Load() {
			return "killed"
		}
		// Backpressure: stop reading while the client is not consuming replies.
		if !c.out.waitBelow(s.cfg.OutboundHighWater, s.cfg.OutboundLowWater) {
			return "write failed"
		}

		timeout := s.cfg.IdleTimeout
		if len(pending) > 0 {
			timeout = s.cfg.ReadTimeout
		}
		_ = c.netConn.SetReadDeadline(time.Now().Add(timeout))

		n, err := c.netConn.Read(buf)
		if n > 0 {
			s.metrics.BytesRead(n)
			pending = append(pending, buf[:n]...)
			cmds, rest, derr := s.cfg.Limits.DecodeCommands(pending)
			for _, cmd := range cmds {
				// Commands queued behind a kill or QUIT are discarded.
				if c.kill.Load() {
					return "killed"
				}
				if reason, ok := s.execute(c, cmd, log); !ok {
					return reason
				}
			}
			if derr != nil {
				s.metrics.ProtocolError()
				detail := strings.TrimPrefix(derr.Error(), resp.ErrProtocol.Error()+": ")
				log.Warn("protocol error", "error", derr)
				perr := domain.Protocol(detail)
				c.out.append(func(b []byte) []byte { return resp.AppendValue(b, resp.Err(perr)) })
				return "protocol error"
			}
			switch {
			case len(rest) == 0 && cap(pending) > 4*s.cfg.ReadBufferSize:
				pending = nil
			default:
				pending = append(pending[:0], rest...)
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return "peer closed"
			case c.kill.Load():
				return "killed"
			case errors.Is(err, os.ErrDeadlineExceeded):
				return "timeout"
			default:
				log.Debug("connection read error", "error", err)
				return "read error"
			}
		}
	}
}

// execute runs one command and queues its reply. It reports false with a
// reason when the connection must close afterwards.
func (s *Server) execute(c *Conn, cmd resp.Command, log *slog.Logger) (string, bool) {
	c.setState(StateExecuting)
	c.touch(cmd.Name)
	s.commands.Add(1)

	reply, quit, err := s.handle(c, cmd)

	c.setState(StateWritingReply)
	if !c.out.append(func(b []byte) []byte { return resp.AppendValue(b, reply) }) {
		return "write failed", false
	}
	c.setState(StateReadingCommand)

	switch {
	case quit:
		return "quit", false
	case err != nil && domain.KindOf(err).Terminal():
		log.Error("command failed, closing connection", "command", cmd.Name, "error", err)
		return "internal error", false
	}
	return "", true
}

// writeLoop drains the outbound buffer until it is closed and empty.
func (s *Server) writeLoop(c *Conn, log *slog.Logger) {
	for {
		chunk := c.out.next()
		if chunk == nil {
			return
		}
		_ = c.netConn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		n, err := c.netConn.Write(chunk)
		s.metrics.BytesWritten(n)
		if err != nil {
			log.Debug("connection write failed", "error", err)
			c.out.fail()
			c.kill.Store(true)
			// Wake the reader.
			_ = c.netConn.SetReadDeadline(time.Now())
			return
		}
		c.out.done(chunk)
	}
}
