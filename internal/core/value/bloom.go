package value

import (
	"errors"
	"math"

	"github.com/spaolacci/murmur3"
)

// Default bloom filter sizing used by BF.ADD on a new key.
const (
	DefaultBloomCapacity  = 10000
	DefaultBloomErrorRate = 0.01
)

// ErrBloomParams is returned for an invalid capacity or error rate.
var ErrBloomParams = errors.New("value: invalid bloom filter parameters")

// Bloom is a fixed-size bloom filter. Probe positions come from one
// 128-bit murmur3 hash split into two halves (Kirsch-Mitzenmacher).
type Bloom struct {
	bits   []uint64
	m      uint64
	k      uint32
	n      int
	cap    int
	errors float64
}

// NewBloom sizes a filter for capacity items at the given false positive rate.
func NewBloom(capacity int, errorRate float64) (*Bloom, error) {
	if capacity <= 0 || errorRate <= 0 || errorRate >= 1 {
		return nil, ErrBloomParams
	}
	m := uint64(math.Ceil(-float64(capacity) * math.Log(errorRate) / (math.Ln2 * math.Ln2)))
	k := uint32(math.Round(float64(m) / float64(capacity) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return &Bloom{
		bits:   make([]uint64, (m+63)/64),
		m:      m,
		k:      k,
		cap:    capacity,
		errors: errorRate,
	}, nil
}

// RestoreBloom rebuilds a filter from its persisted state.
func RestoreBloom(bits []uint64, m uint64, k uint32, n, capacity int, errorRate float64) (*Bloom, error) {
	if m == 0 || k == 0 || uint64(len(bits)) != (m+63)/64 {
		return nil, ErrBloomParams
	}
	return &Bloom{bits: bits, m: m, k: k, n: n, cap: capacity, errors: errorRate}, nil
}

func (b *Bloom) Type() Type       { return TypeBloom }
func (b *Bloom) Encoding() string { return "raw" }

// Len returns the number of items added.
func (b *Bloom) Len() int { return b.n }

// Params returns the persisted state of the filter.
func (b *Bloom) Params() (bits []uint64, m uint64, k uint32, n, capacity int, errorRate float64) {
	return b.bits, b.m, b.k, b.n, b.cap, b.errors
}

func (b *Bloom) positions(item []byte, fn func(pos uint64) bool) {
	h1, h2 := murmur3.Sum128(item)
	for i := uint64(0); i < uint64(b.k); i++ {
		if !fn((h1 + i*h2) % b.m) {
			return
		}
	}
}

// Add inserts item and reports whether it was possibly absent before.
func (b *Bloom) Add(item []byte) bool {
	added := false
	b.positions(item, func(pos uint64) bool {
		word, mask := pos/64, uint64(1)<<(pos%64)
		if b.bits[word]&mask == 0 {
			b.bits[word] |= mask
			added = true
		}
		return true
	})
	if added {
		b.n++
	}
	return added
}

// Exists reports whether item may have been added.
func (b *Bloom) Exists(item []byte) bool {
	found := true
	b.positions(item, func(pos uint64) bool {
		if b.bits[pos/64]&(uint64(1)<<(pos%64)) == 0 {
			found = false
			return false
		}
		return true
	})
	return found
}
