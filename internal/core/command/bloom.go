package command

import (
	"strconv"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/core/value"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

var errBloomExists = domain.New(domain.KindFormat, "item exists")

// BF.RESERVE key error_rate capacity
func cmdBFReserve(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	key := string(args[0])
	rate, err := strconv.ParseFloat(string(args[1]), 64)
	if err != nil || rate <= 0 || rate >= 1 {
		return resp.Value{}, domain.New(domain.KindFormat, "(0 < error rate range < 1)")
	}
	capacity, err := strconv.Atoi(string(args[2]))
	if err != nil || capacity <= 0 {
		return resp.Value{}, domain.New(domain.KindFormat, "(capacity should be larger than 0)")
	}
	bf, err := value.NewBloom(capacity, rate)
	if err != nil {
		return resp.Value{}, domain.New(domain.KindFormat, err.Error())
	}

	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		if tx.Exists(key) {
			return errBloomExists
		}
		tx.Set(key, bf, 0)
		return nil
	})
	if err != nil {
		return resp.Value{}, err
	}
	return resp.OK(), nil
}

// BF.ADD key item. A missing key gets a filter with default sizing.
func cmdBFAdd(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		bf, err := tx.Bloom(key, true)
		if err != nil {
			return err
		}
		reply = resp.Bool(bf.Add(args[1]))
		return nil
	})
	return reply, err
}

// BF.EXISTS key item
func cmdBFExists(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		bf, err := tx.Bloom(key, false)
		if err != nil {
			return err
		}
		reply = resp.Bool(bf != nil && bf.Exists(args[1]))
		return nil
	})
	return reply, err
}
