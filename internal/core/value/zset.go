package value

import (
	"errors"
	"math"
)

// ErrNaN is returned when an increment produces NaN.
var ErrNaN = errors.New("value: resulting score is not a number")

// ZAddFlags are the ZADD update conditions.
type ZAddFlags struct {
	NX   bool // only add new members
	XX   bool // only update existing members
	GT   bool // only update when the new score is greater
	LT   bool // only update when the new score is less
	Incr bool // add to the current score instead of replacing it
}

// ZAddResult tells how a single ZADD pair affected the set.
type ZAddResult uint8

const (
	ZSkipped ZAddResult = iota
	ZAdded
	ZUpdated
	ZUnchanged
)

// ZSet is a sorted set ordered by (score, member).
type ZSet struct {
	dict map[string]float64
	sl   *skiplist
}

// NewZSet creates an empty sorted set.
func NewZSet() *ZSet {
	return &ZSet{
		dict: make(map[string]float64),
		sl:   newSkiplist(),
	}
}

func (z *ZSet) Type() Type  { return TypeZSet }
func (z *ZSet) Len() int    { return len(z.dict) }
func (z *ZSet) collection() {}

func (z *ZSet) Encoding() string {
	if len(z.dict) <= maxListpackItems {
		return "listpack"
	}
	return "skiplist"
}

// Add applies one ZADD pair under flags and returns the outcome and the
// member's resulting score.
func (z *ZSet) Add(member []byte, score float64, flags ZAddFlags) (ZAddResult, float64, error) {
	key := string(member)
	cur, exists := z.dict[key]

	if !exists {
		if flags.XX {
			return ZSkipped, 0, nil
		}
		if math.IsNaN(score) {
			return ZSkipped, 0, ErrNaN
		}
		z.dict[key] = score
		z.sl.insert(key, score)
		return ZAdded, score, nil
	}

	if flags.NX {
		return ZSkipped, cur, nil
	}
	next := score
	if flags.Incr {
		next = cur + score
		if math.IsNaN(next) {
			return ZSkipped, cur, ErrNaN
		}
	}
	if (flags.GT && next <= cur) || (flags.LT && next >= cur) {
		return ZSkipped, cur, nil
	}
	if next == cur {
		return ZUnchanged, cur, nil
	}
	z.sl.delete(key, cur)
	z.sl.insert(key, next)
	z.dict[key] = next
	return ZUpdated, next, nil
}

// IncrBy adds delta to member's score, creating it at delta if absent.
func (z *ZSet) IncrBy(member []byte, delta float64) (float64, error) {
	_, score, err := z.Add(member, delta, ZAddFlags{Incr: true})
	return score, err
}

// Score returns member's score.
func (z *ZSet) Score(member []byte) (float64, bool) {
	s, ok := z.dict[string(member)]
	return s, ok
}

// Remove deletes member and reports whether it was present.
func (z *ZSet) Remove(member []byte) bool {
	key := string(member)
	s, ok := z.dict[key]
	if !ok {
		return false
	}
	z.sl.delete(key, s)
	delete(z.dict, key)
	return true
}

// Rank returns member's 0-based rank in ascending order.
func (z *ZSet) Rank(member []byte) (int, bool) {
	key := string(member)
	s, ok := z.dict[key]
	if !ok {
		return 0, false
	}
	return z.sl.rank(key, s) - 1, true
}

// Range returns the members between ranks start and stop inclusive, with
// negative ranks counted from the highest score.
func (z *ZSet) Range(start, stop int) []Member {
	start, stop, ok := ClampRange(start, stop, z.sl.length)
	if !ok {
		return []Member{}
	}
	out := make([]Member, 0, stop-start+1)
	for x := z.sl.byRank(start + 1); x != nil && len(out) < stop-start+1; x = x.level[0].forward {
		out = append(out, x.Member)
	}
	return out
}

// All returns every member in order.
func (z *ZSet) All() []Member {
	return z.Range(0, -1)
}
