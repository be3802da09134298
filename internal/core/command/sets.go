package command

import (
	"github.com/yndnr/tidekv/internal/core/value"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

// SADD key member [member ...]
func cmdSAdd(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.SetValue(key, true)
		if err != nil {
			return err
		}
		added := 0
		for _, m := range args[1:] {
			if s.Add(m) {
				added++
			}
		}
		reply = resp.Integer(int64(added))
		return nil
	})
	return reply, err
}

// SREM key member [member ...]
func cmdSRem(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.SetValue(key, false)
		if err != nil {
			return err
		}
		removed := 0
		if s != nil {
			for _, m := range args[1:] {
				if s.Remove(m) {
					removed++
				}
			}
		}
		reply = resp.Integer(int64(removed))
		return nil
	})
	return reply, err
}

// SMEMBERS key
func cmdSMembers(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.SetValue(key, false)
		if err != nil {
			return err
		}
		if s == nil {
			reply = resp.Array()
			return nil
		}
		reply = resp.BulkArray(s.Members())
		return nil
	})
	return reply, err
}

// SISMEMBER key member
func cmdSIsMember(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.SetValue(key, false)
		if err != nil {
			return err
		}
		reply = resp.Bool(s != nil && s.Has(args[1]))
		return nil
	})
	return reply, err
}

// SCARD key
func cmdSCard(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		s, err := tx.SetValue(key, false)
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

// setAlgebra reads every key as a set under one view and combines them.
// Any key holding another type fails the whole command.
func setAlgebra(db *keyspace.DB, args [][]byte, op func(sets []*value.Set) *value.Set) (reply resp.Value, err error) {
	keys := keyList(args)
	err = db.View(keys, func(tx *keyspace.Txn) error {
		sets := make([]*value.Set, len(keys))
		for i, key := range keys {
			s, err := tx.SetValue(key, false)
			if err != nil {
				return err
			}
			sets[i] = s
		}
		reply = resp.BulkArray(op(sets).Members())
		return nil
	})
	return reply, err
}

// SINTER key [key ...]
func cmdSInter(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return setAlgebra(db, args, func(sets []*value.Set) *value.Set {
		return value.Inter(sets...)
	})
}

// SUNION key [key ...]
func cmdSUnion(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return setAlgebra(db, args, func(sets []*value.Set) *value.Set {
		return value.Union(sets...)
	})
}

// SDIFF key [key ...]
func cmdSDiff(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return setAlgebra(db, args, func(sets []*value.Set) *value.Set {
		return value.Diff(sets[0], sets[1:]...)
	})
}
