package command

import (
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

func push(db *keyspace.DB, args [][]byte, front bool) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		l, err := tx.List(key, true)
		if err != nil {
			return err
		}
		for _, el := range args[1:] {
			if front {
				l.PushFront(el)
			} else {
				l.PushBack(el)
			}
		}
		reply = resp.Integer(int64(l.Len()))
		return nil
	})
	return reply, err
}

// LPUSH key element [element ...]
func cmdLPush(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return push(db, args, true)
}

// RPUSH key element [element ...]
func cmdRPush(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return push(db, args, false)
}

// pop implements LPOP and RPOP. Without a count the reply is a single bulk
// string; with a count it is an array, nil when the key is absent.
func pop(db *keyspace.DB, args [][]byte, front bool) (reply resp.Value, err error) {
	key := string(args[0])
	count, withCount := 1, len(args) == 2
	if withCount {
		if count, err = parseCount(args[1]); err != nil {
			return reply, err
		}
	}

	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		l, err := tx.List(key, false)
		if err != nil {
			return err
		}
		if l == nil {
			reply = resp.NilBulk()
			if withCount {
				reply = resp.NilArray()
			}
			return nil
		}

		out := make([][]byte, 0, min(count, l.Len()))
		for len(out) < count {
			var el []byte
			var ok bool
			if front {
				el, ok = l.PopFront()
			} else {
				el, ok = l.PopBack()
			}
			if !ok {
				break
			}
			out = append(out, el)
		}

		if !withCount {
			reply = resp.NilBulk()
			if len(out) > 0 {
				reply = resp.Bulk(out[0])
			}
			return nil
		}
		reply = resp.BulkArray(out)
		return nil
	})
	return reply, err
}

// LPOP key [count]
func cmdLPop(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return pop(db, args, true)
}

// RPOP key [count]
func cmdRPop(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return pop(db, args, false)
}

// LRANGE key start stop
func cmdLRange(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	start, err := parseIndex(args[1])
	if err != nil {
		return reply, err
	}
	stop, err := parseIndex(args[2])
	if err != nil {
		return reply, err
	}

	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		l, err := tx.List(key, false)
		if err != nil {
			return err
		}
		if l == nil {
			reply = resp.Array()
			return nil
		}
		reply = resp.BulkArray(l.Range(start, stop))
		return nil
	})
	return reply, err
}

// LLEN key
func cmdLLen(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		l, err := tx.List(key, false)
		if err != nil {
			return err
		}
		n := 0
		if l != nil {
			n = l.Len()
		}
		reply = resp.Integer(int64(n))
		return nil
	})
	return reply, err
}

// LINDEX key index
func cmdLIndex(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	idx, err := parseIndex(args[1])
	if err != nil {
		return reply, err
	}
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		l, err := tx.List(key, false)
		if err != nil {
			return err
		}
		reply = resp.NilBulk()
		if l != nil {
			if el, ok := l.Index(idx); ok {
				reply = resp.Bulk(el)
			}
		}
		return nil
	})
	return reply, err
}
