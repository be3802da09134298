package command

import (
	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

// HSET key field value [field value ...]
func cmdHSet(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	if len(args)%2 != 1 {
		return reply, domain.Arity("hset")
	}
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		h, err := tx.Hash(key, true)
		if err != nil {
			return err
		}
		added := 0
		for i := 1; i < len(args); i += 2 {
			if h.Set(args[i], args[i+1]) {
				added++
			}
		}
		reply = resp.Integer(int64(added))
		return nil
	})
	return reply, err
}

// HMSET key field value [field value ...]
func cmdHMSet(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	if len(args)%2 != 1 {
		return resp.Value{}, domain.Arity("hmset")
	}
	if _, err := cmdHSet(db, args); err != nil {
		return resp.Value{}, err
	}
	return resp.OK(), nil
}

// HGET key field
func cmdHGet(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		h, err := tx.Hash(key, false)
		if err != nil {
			return err
		}
		reply = resp.NilBulk()
		if h != nil {
			if v, ok := h.Get(args[1]); ok {
				reply = resp.Bulk(v)
			}
		}
		return nil
	})
	return reply, err
}

// HDEL key field [field ...]
func cmdHDel(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		h, err := tx.Hash(key, false)
		if err != nil {
			return err
		}
		removed := 0
		if h != nil {
			for _, f := range args[1:] {
				if h.Delete(f) {
					removed++
				}
			}
		}
		reply = resp.Integer(int64(removed))
		return nil
	})
	return reply, err
}

// HGETALL key
func cmdHGetAll(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		h, err := tx.Hash(key, false)
		if err != nil {
			return err
		}
		if h == nil {
			reply = resp.Array()
			return nil
		}
		reply = resp.BulkArray(h.Pairs())
		return nil
	})
	return reply, err
}

// HLEN key
func cmdHLen(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		h, err := tx.Hash(key, false)
		if err != nil {
			return err
		}
		n := 0
		if h != nil {
			n = h.Len()
		}
		reply = resp.Integer(int64(n))
		return nil
	})
	return reply, err
}

// HEXISTS key field
func cmdHExists(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		h, err := tx.Hash(key, false)
		if err != nil {
			return err
		}
		reply = resp.Bool(h != nil && h.Exists(args[1]))
		return nil
	})
	return reply, err
}
