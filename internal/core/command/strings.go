package command

import (
	"math"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/core/value"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

// GET key
func cmdGet(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.String(key)
		if err != nil {
			return err
		}
		if s == nil {
			reply = resp.NilBulk()
			return nil
		}
		reply = resp.Bulk(s.Bytes())
		return nil
	})
	return reply, err
}

// setOptions are the parsed flags of SET.
type setOptions struct {
	nx, xx  bool
	get     bool
	keepTTL bool
	expire  int64
	unit    expireUnit
	hasUnit bool
}

func parseSetOptions(args [][]byte) (setOptions, error) {
	var o setOptions
	for i := 0; i < len(args); i++ {
		switch opt := upper(args[i]); opt {
		case "NX":
			o.nx = true
		case "XX":
			o.xx = true
		case "GET":
			o.get = true
		case "KEEPTTL":
			o.keepTTL = true
		case "EX", "PX", "EXAT", "PXAT":
			if o.hasUnit || i+1 >= len(args) {
				return o, domain.ErrSyntax
			}
			n, err := parseInt(args[i+1])
			if err != nil {
				return o, err
			}
			if n <= 0 {
				return o, domain.InvalidExpire("set")
			}
			o.expire = n
			o.hasUnit = true
			o.unit = expireUnit{
				millis:   opt == "PX" || opt == "PXAT",
				absolute: opt == "EXAT" || opt == "PXAT",
			}
			i++
		default:
			return o, domain.ErrSyntax
		}
	}
	if (o.nx && o.xx) || (o.keepTTL && o.hasUnit) {
		return o, domain.ErrSyntax
	}
	return o, nil
}

// SET key value [NX|XX] [GET] [EX s|PX ms|EXAT ts|PXAT ms|KEEPTTL]
func cmdSet(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key, val := string(args[0]), args[1]
	opts, err := parseSetOptions(args[2:])
	if err != nil {
		return reply, err
	}

	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		e, exists := tx.Get(key)

		old := resp.NilBulk()
		if opts.get && exists {
			s, ok := e.Value.(*value.String)
			if !ok {
				return domain.ErrWrongType
			}
			old = resp.Bulk(s.Bytes())
		}

		if (opts.nx && exists) || (opts.xx && !exists) {
			reply = resp.NilBulk()
			if opts.get {
				reply = old
			}
			return nil
		}

		var expireAt int64
		switch {
		case opts.hasUnit:
			at, ok := opts.unit.at(opts.expire, tx.Now())
			if !ok {
				return domain.InvalidExpire("set")
			}
			expireAt = at
		case opts.keepTTL && exists:
			expireAt = e.ExpireAt
		}

		if expireAt > 0 && expireAt <= tx.Now() {
			tx.Delete(key)
		} else {
			tx.Set(key, value.NewString(val), expireAt)
		}

		reply = resp.OK()
		if opts.get {
			reply = old
		}
		return nil
	})
	return reply, err
}

// SETNX key value
func cmdSetNX(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		if tx.Exists(key) {
			reply = resp.Integer(0)
			return nil
		}
		tx.Set(key, value.NewString(args[1]), 0)
		reply = resp.Integer(1)
		return nil
	})
	return reply, err
}

// MSET key value [key value ...]
func cmdMSet(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	if len(args)%2 != 0 {
		return resp.Value{}, domain.Arity("mset")
	}
	keys := make([]string, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		keys = append(keys, string(args[i]))
	}
	err := db.Update(keys, func(tx *keyspace.Txn) error {
		for i, key := range keys {
			tx.Set(key, value.NewString(args[2*i+1]), 0)
		}
		return nil
	})
	if err != nil {
		return resp.Value{}, err
	}
	return resp.OK(), nil
}

// MGET key [key ...]. Keys holding other types read as nil.
func cmdMGet(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	keys := keyList(args)
	err = db.View(keys, func(tx *keyspace.Txn) error {
		vals := make([]resp.Value, len(keys))
		for i, key := range keys {
			vals[i] = resp.NilBulk()
			if e, ok := tx.Get(key); ok {
				if s, isStr := e.Value.(*value.String); isStr {
					vals[i] = resp.Bulk(s.Bytes())
				}
			}
		}
		reply = resp.Array(vals...)
		return nil
	})
	return reply, err
}

// APPEND key value
func cmdAppend(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.String(key)
		if err != nil {
			return err
		}
		if s == nil {
			tx.Set(key, value.NewString(args[1]), 0)
			reply = resp.Integer(int64(len(args[1])))
			return nil
		}
		reply = resp.Integer(int64(s.Append(args[1])))
		return nil
	})
	return reply, err
}

// STRLEN key
func cmdStrlen(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.String(key)
		if err != nil {
			return err
		}
		n := 0
		if s != nil {
			n = s.Len()
		}
		reply = resp.Integer(int64(n))
		return nil
	})
	return reply, err
}

// GETDEL key
func cmdGetDel(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.String(key)
		if err != nil {
			return err
		}
		if s == nil {
			reply = resp.NilBulk()
			return nil
		}
		reply = resp.Bulk(s.Bytes())
		tx.Delete(key)
		return nil
	})
	return reply, err
}

// incrBy adds delta to the integer at key, keeping its expiry.
func incrBy(db *keyspace.DB, key string, delta int64) (reply resp.Value, err error) {
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		var cur, expireAt int64
		if e, ok := tx.Get(key); ok {
			s, isStr := e.Value.(*value.String)
			if !isStr {
				return domain.ErrWrongType
			}
			n, ok := s.Int()
			if !ok {
				return domain.ErrNotInteger
			}
			cur, expireAt = n, e.ExpireAt
		}
		if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
			return domain.ErrOverflow
		}
		next := cur + delta
		tx.Set(key, value.NewInt(next), expireAt)
		reply = resp.Integer(next)
		return nil
	})
	return reply, err
}

// INCR key
func cmdIncr(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return incrBy(db, string(args[0]), 1)
}

// DECR key
func cmdDecr(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return incrBy(db, string(args[0]), -1)
}

// INCRBY key increment
func cmdIncrBy(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	delta, err := parseInt(args[1])
	if err != nil {
		return resp.Value{}, err
	}
	return incrBy(db, string(args[0]), delta)
}

// DECRBY key decrement
func cmdDecrBy(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	delta, err := parseInt(args[1])
	if err != nil {
		return resp.Value{}, err
	}
	if delta == math.MinInt64 {
		return resp.Value{}, domain.New(domain.KindFormat, "decrement would overflow")
	}
	return incrBy(db, string(args[0]), -delta)
}
