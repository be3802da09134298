package respserver

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/tidekv/pkg/cmap"
)

const (
	limiterIdleTTL    = 3 * time.Minute
	limiterPruneEvery = time.Minute
	limiterShards     = 32
)

// ipLimiter is a token bucket per client IP. Buckets live in a sharded map
// so clients from different addresses do not serialize on one lock.
type ipLimiter struct {
	// mu guards limit and burst. allow holds it shared while creating a
	// bucket so setLimit cannot miss one.
	mu    sync.RWMutex
	limit rate.Limit
	burst int

	clients   *cmap.Map[*clientBucket]
	lastPrune atomic.Int64
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	l := &ipLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: cmap.New[*clientBucket](limiterShards),
	}
	l.lastPrune.Store(time.Now().UnixNano())
	return l
}

// allow reports whether ip may run one more command now.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.RLock()
	if l.limit <= 0 {
		l.mu.RUnlock()
		return true
	}
	limit, burst := l.limit, l.burst
	b, _ := l.clients.GetOrCreate(ip, func() *clientBucket {
		return &clientBucket{lim: rate.NewLimiter(limit, burst)}
	})
	l.mu.RUnlock()

	now := time.Now()
	b.lastSeen.Store(now.UnixNano())

	last := l.lastPrune.Load()
	if now.UnixNano()-last > int64(limiterPruneEvery) && l.lastPrune.CompareAndSwap(last, now.UnixNano()) {
		l.prune(now)
	}
	return b.lim.AllowN(now, 1)
}

// setLimit changes the rate for existing and future clients.
func (l *ipLimiter) setLimit(perSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = rate.Limit(perSecond)
	l.burst = burst
	l.clients.Range(func(_ string, b *clientBucket) bool {
		b.lim.SetLimit(l.limit)
		b.lim.SetBurst(burst)
		return true
	})
}

// prune drops buckets idle for longer than limiterIdleTTL.
func (l *ipLimiter) prune(now time.Time) int {
	cutoff := now.Add(-limiterIdleTTL).UnixNano()
	return l.clients.DeleteFunc(func(_ string, b *clientBucket) bool {
		return b.lastSeen.Load() < cutoff
	})
}

func (l *ipLimiter) size() int {
	return l.clients.Len()
}
