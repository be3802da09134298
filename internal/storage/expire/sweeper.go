package expire

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default sweep tuning.
const (
	DefaultInterval          = 100 * time.Millisecond
	DefaultSampleSize        = 20
	DefaultResampleThreshold = 0.25
	DefaultMaxRounds         = 16
	DefaultTimeBudget        = 25 * time.Millisecond
)

// ErrInvalidConfig is returned by New and Reconfigure for unusable tuning.
var ErrInvalidConfig = errors.New("expire: invalid sweeper config")

// Config tunes the active sweep.
type Config struct {
	// Interval between ticks.
	Interval time.Duration

	// SampleSize is the number of volatile keys inspected per round.
	SampleSize int

	// ResampleThreshold is the expired fraction of a sample above which the
	// same shard is sampled again in the same tick.
	ResampleThreshold float64

	// MaxRounds bounds the sampling rounds of one tick across all shards.
	MaxRounds int

	// TimeBudget bounds the wall time of one tick.
	TimeBudget time.Duration
}

// DefaultConfig returns the default sweep tuning.
func DefaultConfig() Config {
	return Config{
		Interval:          DefaultInterval,
		SampleSize:        DefaultSampleSize,
		ResampleThreshold: DefaultResampleThreshold,
		MaxRounds:         DefaultMaxRounds,
		TimeBudget:        DefaultTimeBudget,
	}
}

// Validate checks the tuning.
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("interval must be positive"))
	case c.SampleSize <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("sample_size must be positive"))
	case c.ResampleThreshold <= 0 || c.ResampleThreshold > 1:
		return errors.Join(ErrInvalidConfig, errors.New("resample_threshold must be in (0, 1]"))
	case c.MaxRounds <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("max_rounds must be positive"))
	case c.TimeBudget <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("time_budget must be positive"))
	}
	return nil
}

// Target is the sharded keyspace being swept.
type Target interface {
	ShardCount() int
	SampleExpired(shard, n int) (sampled, removed int)
}

// Result summarizes one tick.
type Result struct {
	Shards  int
	Rounds  int
	Sampled int
	Removed int
}

// Sweeper removes expired keys in the background by sampling.
type Sweeper struct {
	target Target
	cfg    atomic.Pointer[Config]
	logger *slog.Logger
	now    func() time.Time

	onTick func(Result)

	mu   sync.Mutex // serializes ticks; guards next
	next int

	started  atomic.Bool
	reset    chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = l
	}
}

// WithObserver registers a callback invoked after every tick.
func WithObserver(fn func(Result)) Option {
	return func(s *Sweeper) {
		s.onTick = fn
	}
}

// WithClock sets the time source used for the tick budget.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// New creates a sweeper. Call Start to run it in the background.
func New(target Target, cfg Config, opts ...Option) (*Sweeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sweeper{
		target: target,
		logger: slog.Default(),
		now:    time.Now,
		reset:  make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	s.cfg.Store(&cfg)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the active tuning.
func (s *Sweeper) Config() Config {
	return *s.cfg.Load()
}

// Reconfigure swaps the tuning. It takes effect on the next tick.
func (s *Sweeper) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg.Store(&cfg)
	select {
	case s.reset <- struct{}{}:
	default:
	}
	s.logger.Info("expiry sweeper reconfigured",
		"interval", cfg.Interval,
		"sample_size", cfg.SampleSize,
		"resample_threshold", cfg.ResampleThreshold,
		"max_rounds", cfg.MaxRounds)
	return nil
}

// Tick runs one bounded sweep. Shards are visited round-robin, continuing
// where the previous tick stopped.
func (s *Sweeper) Tick() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Load()
	shards := s.target.ShardCount()
	deadline := s.now().Add(cfg.TimeBudget)

	var res Result
	for res.Shards < shards && res.Rounds < cfg.MaxRounds {
		idx := s.next
		s.next = (s.next + 1) % shards
		res.Shards++

		for res.Rounds < cfg.MaxRounds {
			sampled, removed := s.target.SampleExpired(idx, cfg.SampleSize)
			res.Rounds++
			res.Sampled += sampled
			res.Removed += removed
			if sampled == 0 || float64(removed)/float64(sampled) <= cfg.ResampleThreshold {
				break
			}
			if !s.now().Before(deadline) {
				break
			}
		}
		if !s.now().Before(deadline) {
			break
		}
	}

	if res.Removed > 0 {
		s.logger.Debug("expired keys swept",
			"removed", res.Removed,
			"sampled", res.Sampled,
			"rounds", res.Rounds)
	}
	if s.onTick != nil {
		s.onTick(res)
	}
	return res
}

// Start launches the background loop.
func (s *Sweeper) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.loop()
	}
}

func (s *Sweeper) loop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Config().Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-s.reset:
			ticker.Reset(s.Config().Interval)
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts the background loop and waits for it to exit. It is safe to
// call Stop without Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.doneCh
	}
}
