package expire

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/tidekv/internal/core/value"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

// fakeTarget reports a fixed number of expired keys per shard, handed out
// in samples.
type fakeTarget struct {
	mu      sync.Mutex
	expired []int
	visits  []int
}

func (f *fakeTarget) ShardCount() int { return len(f.expired) }

func (f *fakeTarget) SampleExpired(shard, n int) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visits = append(f.visits, shard)
	left := f.expired[shard]
	if left == 0 {
		return n, 0
	}
	removed := min(left, n)
	f.expired[shard] -= removed
	return n, removed
}

func mustSweeper(t *testing.T, target Target, cfg Config) *Sweeper {
	t.Helper()
	s, err := New(target, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"zero interval", func(c *Config) { c.Interval = 0 }, false},
		{"zero sample", func(c *Config) { c.SampleSize = 0 }, false},
		{"threshold above one", func(c *Config) { c.ResampleThreshold = 1.5 }, false},
		{"zero threshold", func(c *Config) { c.ResampleThreshold = 0 }, false},
		{"zero rounds", func(c *Config) { c.MaxRounds = 0 }, false},
		{"zero budget", func(c *Config) { c.TimeBudget = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err == nil) != tt.valid {
				t.Errorf("Validate() error = %v, valid = %v", err, tt.valid)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v should wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestSweeper_ResamplesHotShard(t *testing.T) {
	target := &fakeTarget{expired: []int{100, 0, 0, 0}}
	cfg := DefaultConfig()
	cfg.SampleSize = 10
	cfg.MaxRounds = 100
	cfg.TimeBudget = time.Hour
	s := mustSweeper(t, target, cfg)

	res := s.Tick()

	// Shard 0: 10 full rounds plus one empty round, then one round per
	// remaining shard.
	if res.Removed != 100 {
		t.Errorf("Removed = %d, want 100", res.Removed)
	}
	if res.Rounds != 14 {
		t.Errorf("Rounds = %d, want 14", res.Rounds)
	}
	if res.Shards != 4 {
		t.Errorf("Shards = %d, want 4", res.Shards)
	}
}

func TestSweeper_MaxRoundsBound(t *testing.T) {
	target := &fakeTarget{expired: []int{1000, 1000}}
	cfg := DefaultConfig()
	cfg.SampleSize = 10
	cfg.MaxRounds = 5
	cfg.TimeBudget = time.Hour
	s := mustSweeper(t, target, cfg)

	res := s.Tick()
	if res.Rounds != 5 || res.Removed != 50 {
		t.Errorf("Tick() = %+v, want 5 rounds and 50 removed", res)
	}
}

func TestSweeper_RoundRobinAcrossTicks(t *testing.T) {
	target := &fakeTarget{expired: make([]int, 8)}
	cfg := DefaultConfig()
	cfg.MaxRounds = 3
	cfg.TimeBudget = time.Hour
	s := mustSweeper(t, target, cfg)

	s.Tick()
	s.Tick()
	s.Tick()

	if got := fmt.Sprint(target.visits); got != "[0 1 2 3 4 5 6 7 0]" {
		t.Errorf("visits = %s", got)
	}
}

func TestSweeper_TimeBudget(t *testing.T) {
	target := &fakeTarget{expired: []int{1000, 1000, 1000}}
	cfg := DefaultConfig()
	cfg.SampleSize = 10
	cfg.MaxRounds = 1000
	cfg.TimeBudget = time.Millisecond

	// Each clock read advances one millisecond, so the budget runs out
	// after the first round.
	now := time.Unix(0, 0)
	s, _ := New(target, cfg, WithClock(func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}))

	res := s.Tick()
	if res.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", res.Rounds)
	}
}

func TestSweeper_Reconfigure(t *testing.T) {
	s := mustSweeper(t, &fakeTarget{expired: []int{0}}, DefaultConfig())

	bad := DefaultConfig()
	bad.SampleSize = -1
	if err := s.Reconfigure(bad); err == nil {
		t.Error("Reconfigure() with invalid config should fail")
	}

	good := DefaultConfig()
	good.SampleSize = 50
	if err := s.Reconfigure(good); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if s.Config().SampleSize != 50 {
		t.Errorf("SampleSize = %d, want 50", s.Config().SampleSize)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	s := mustSweeper(t, &fakeTarget{expired: []int{0}}, DefaultConfig())
	// Stop without Start must not block.
	s.Stop()

	s2 := mustSweeper(t, &fakeTarget{expired: []int{0}}, DefaultConfig())
	s2.Start()
	s2.Stop()
	s2.Stop()
}

// TestSweeper_Keyspace runs the sweeper against a real keyspace.
func TestSweeper_Keyspace(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	db := keyspace.New(keyspace.WithShards(4), keyspace.WithClock(func() time.Time { return now }))

	keys := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		keys = append(keys, fmt.Sprintf("k%d", i))
	}
	err := db.Update(keys, func(tx *keyspace.Txn) error {
		for i, k := range keys {
			exp := tx.Now() + 1000
			if i%2 == 0 {
				exp = 0
			}
			tx.Set(k, value.NewString([]byte("v")), exp)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	now = now.Add(time.Hour)

	var observed int
	cfg := DefaultConfig()
	cfg.MaxRounds = 1000
	cfg.TimeBudget = time.Hour
	s, _ := New(db, cfg, WithObserver(func(r Result) { observed += r.Removed }))
	s.Tick()

	if st := db.Stats(); st.Keys != 100 || st.Volatile != 0 {
		t.Errorf("Stats() = %+v, want 100 keys and no volatile", st)
	}
	if observed != 100 {
		t.Errorf("observer saw %d removals, want 100", observed)
	}
}
