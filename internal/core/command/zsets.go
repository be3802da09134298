package command

import (
	"errors"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/core/value"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

type zaddPair struct {
	score  float64
	member []byte
}

// parseZAdd splits ZADD arguments (after the key) into flags and pairs.
// All scores are parsed before anything is written.
func parseZAdd(args [][]byte) (value.ZAddFlags, bool, []zaddPair, error) {
	var flags value.ZAddFlags
	var ch bool
	i := 0
loop:
	for ; i < len(args); i++ {
		switch upper(args[i]) {
		case "NX":
			flags.NX = true
		case "XX":
			flags.XX = true
		case "GT":
			flags.GT = true
		case "LT":
			flags.LT = true
		case "CH":
			ch = true
		case "INCR":
			flags.Incr = true
		default:
			break loop
		}
	}

	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return flags, ch, nil, domain.ErrSyntax
	}
	if flags.NX && flags.XX {
		return flags, ch, nil, domain.ErrNXAndXX
	}
	if (flags.GT && flags.LT) || ((flags.GT || flags.LT) && flags.NX) {
		return flags, ch, nil, domain.ErrGTLTNX
	}
	if flags.Incr && len(rest) > 2 {
		return flags, ch, nil, domain.ErrIncrPair
	}

	pairs := make([]zaddPair, 0, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		score, err := parseFloat(rest[j])
		if err != nil {
			return flags, ch, nil, err
		}
		pairs = append(pairs, zaddPair{score: score, member: rest[j+1]})
	}
	return flags, ch, pairs, nil
}

func zsetErr(err error) error {
	if errors.Is(err, value.ErrNaN) {
		return domain.ErrNaN
	}
	return err
}

// ZADD key [NX|XX] [GT|LT] [CH] [INCR] score member [score member ...]
func cmdZAdd(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	flags, ch, pairs, err := parseZAdd(args[1:])
	if err != nil {
		return reply, err
	}

	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		// An empty set created here is dropped on commit if nothing is added.
		z, err := tx.ZSet(key, true)
		if err != nil {
			return err
		}

		var added, updated int
		var last value.ZAddResult
		var score float64
		for _, p := range pairs {
			last, score, err = z.Add(p.member, p.score, flags)
			if err != nil {
				return zsetErr(err)
			}
			switch last {
			case value.ZAdded:
				added++
			case value.ZUpdated:
				updated++
			}
		}

		switch {
		case flags.Incr && last == value.ZSkipped:
			reply = resp.NilBulk()
		case flags.Incr:
			reply = resp.BulkFloat(score)
		case ch:
			reply = resp.Integer(int64(added + updated))
		default:
			reply = resp.Integer(int64(added))
		}
		return nil
	})
	return reply, err
}

// ZINCRBY key increment member
func cmdZIncrBy(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	delta, err := parseFloat(args[1])
	if err != nil {
		return reply, err
	}
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		z, err := tx.ZSet(key, true)
		if err != nil {
			return err
		}
		score, err := z.IncrBy(args[2], delta)
		if err != nil {
			return zsetErr(err)
		}
		reply = resp.BulkFloat(score)
		return nil
	})
	return reply, err
}

// ZRANGE key start stop [WITHSCORES]
func cmdZRange(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	start, err := parseIndex(args[1])
	if err != nil {
		return reply, err
	}
	stop, err := parseIndex(args[2])
	if err != nil {
		return reply, err
	}
	withScores := false
	for _, a := range args[3:] {
		if upper(a) != "WITHSCORES" {
			return reply, domain.ErrSyntax
		}
		withScores = true
	}

	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		z, err := tx.ZSet(key, false)
		if err != nil {
			return err
		}
		if z == nil {
			reply = resp.Array()
			return nil
		}
		members := z.Range(start, stop)
		n := len(members)
		if withScores {
			n *= 2
		}
		vals := make([]resp.Value, 0, n)
		for _, m := range members {
			vals = append(vals, resp.BulkString(m.Member))
			if withScores {
				vals = append(vals, resp.BulkFloat(m.Score))
			}
		}
		reply = resp.Array(vals...)
		return nil
	})
	return reply, err
}

// ZSCORE key member
func cmdZScore(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		z, err := tx.ZSet(key, false)
		if err != nil {
			return err
		}
		reply = resp.NilBulk()
		if z != nil {
			if s, ok := z.Score(args[1]); ok {
				reply = resp.BulkFloat(s)
			}
		}
		return nil
	})
	return reply, err
}

// ZCARD key
func cmdZCard(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		z, err := tx.ZSet(key, false)
		if err != nil {
			return err
		}
		n := 0
		if z != nil {
			n = z.Len()
		}
		reply = resp.Integer(int64(n))
		return nil
	})
	return reply, err
}

// ZREM key member [member ...]
func cmdZRem(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		z, err := tx.ZSet(key, false)
		if err != nil {
			return err
		}
		removed := 0
		if z != nil {
			for _, m := range args[1:] {
				if z.Remove(m) {
					removed++
				}
			}
		}
		reply = resp.Integer(int64(removed))
		return nil
	})
	return reply, err
}

// ZRANK key member
func cmdZRank(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		z, err := tx.ZSet(key, false)
		if err != nil {
			return err
		}
		reply = resp.NilBulk()
		if z != nil {
			if r, ok := z.Rank(args[1]); ok {
				reply = resp.Integer(int64(r))
			}
		}
		return nil
	})
	return reply, err
}
