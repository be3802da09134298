package command

import (
	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

const (
	rw   = FlagWrite
	ro   = FlagReadOnly
	fast = FlagFast
)

// expire units for the EXPIRE family.
var (
	unitSeconds     = expireUnit{}
	unitMillis      = expireUnit{millis: true}
	unitUnixSeconds = expireUnit{absolute: true}
	unitUnixMillis  = expireUnit{millis: true, absolute: true}
)

// builtins returns the command table. A fresh slice is built per call so
// dispatchers never share descriptors.
func builtins() []*Descriptor {
	return []*Descriptor{
		// Strings
		{Name: "GET", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdGet},
		{Name: "SET", Arity: -3, Flags: rw, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdSet},
		{Name: "SETNX", Arity: 3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdSetNX},
		{Name: "MGET", Arity: -2, Flags: ro | fast, FirstKey: 1, LastKey: -1, Step: 1, Handler: cmdMGet},
		{Name: "MSET", Arity: -3, Flags: rw, FirstKey: 1, LastKey: -1, Step: 2, Handler: cmdMSet},
		{Name: "APPEND", Arity: 3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdAppend},
		{Name: "STRLEN", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdStrlen},
		{Name: "GETDEL", Arity: 2, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdGetDel},
		{Name: "INCR", Arity: 2, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdIncr},
		{Name: "DECR", Arity: 2, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdDecr},
		{Name: "INCRBY", Arity: 3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdIncrBy},
		{Name: "DECRBY", Arity: 3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdDecrBy},

		// Lists
		{Name: "LPUSH", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdLPush},
		{Name: "RPUSH", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdRPush},
		{Name: "LPOP", Arity: -2, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: arityMax(3, "lpop", cmdLPop)},
		{Name: "RPOP", Arity: -2, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: arityMax(3, "rpop", cmdRPop)},
		{Name: "LRANGE", Arity: 4, Flags: ro, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdLRange},
		{Name: "LLEN", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdLLen},
		{Name: "LINDEX", Arity: 3, Flags: ro, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdLIndex},

		// Hashes
		{Name: "HSET", Arity: -4, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdHSet},
		{Name: "HMSET", Arity: -4, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdHMSet},
		{Name: "HGET", Arity: 3, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdHGet},
		{Name: "HDEL", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdHDel},
		{Name: "HGETALL", Arity: 2, Flags: ro, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdHGetAll},
		{Name: "HLEN", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdHLen},
		{Name: "HEXISTS", Arity: 3, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdHExists},

		// Sets
		{Name: "SADD", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdSAdd},
		{Name: "SREM", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdSRem},
		{Name: "SMEMBERS", Arity: 2, Flags: ro, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdSMembers},
		{Name: "SISMEMBER", Arity: 3, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdSIsMember},
		{Name: "SCARD", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdSCard},
		{Name: "SINTER", Arity: -2, Flags: ro, FirstKey: 1, LastKey: -1, Step: 1, Handler: cmdSInter},
		{Name: "SUNION", Arity: -2, Flags: ro, FirstKey: 1, LastKey: -1, Step: 1, Handler: cmdSUnion},
		{Name: "SDIFF", Arity: -2, Flags: ro, FirstKey: 1, LastKey: -1, Step: 1, Handler: cmdSDiff},

		// Sorted sets
		{Name: "ZADD", Arity: -4, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdZAdd},
		{Name: "ZINCRBY", Arity: 4, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdZIncrBy},
		{Name: "ZRANGE", Arity: -4, Flags: ro, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdZRange},
		{Name: "ZSCORE", Arity: 3, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdZScore},
		{Name: "ZCARD", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdZCard},
		{Name: "ZREM", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdZRem},
		{Name: "ZRANK", Arity: 3, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdZRank},

		// Bloom filters
		{Name: "BF.RESERVE", Arity: 4, Flags: rw, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdBFReserve},
		{Name: "BF.ADD", Arity: 3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdBFAdd},
		{Name: "BF.EXISTS", Arity: 3, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdBFExists},

		// Keyspace
		{Name: "DEL", Arity: -2, Flags: rw, FirstKey: 1, LastKey: -1, Step: 1, Handler: cmdDel},
		{Name: "EXISTS", Arity: -2, Flags: ro | fast, FirstKey: 1, LastKey: -1, Step: 1, Handler: cmdExists},
		{Name: "EXPIRE", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: expireGeneric("expire", unitSeconds)},
		{Name: "PEXPIRE", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: expireGeneric("pexpire", unitMillis)},
		{Name: "EXPIREAT", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: expireGeneric("expireat", unitUnixSeconds)},
		{Name: "PEXPIREAT", Arity: -3, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: expireGeneric("pexpireat", unitUnixMillis)},
		{Name: "PERSIST", Arity: 2, Flags: rw | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdPersist},
		{Name: "TTL", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: ttlGeneric(false)},
		{Name: "PTTL", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: ttlGeneric(true)},
		{Name: "TYPE", Arity: 2, Flags: ro | fast, FirstKey: 1, LastKey: 1, Step: 1, Handler: cmdType},
		{Name: "OBJECT", Arity: -2, Flags: ro, FirstKey: 2, LastKey: 2, Step: 1, Handler: cmdObject},
		{Name: "RENAME", Arity: 3, Flags: rw, FirstKey: 1, LastKey: 2, Step: 1, Handler: cmdRename},
		{Name: "RENAMENX", Arity: 3, Flags: rw | fast, FirstKey: 1, LastKey: 2, Step: 1, Handler: cmdRenameNX},
		{Name: "KEYS", Arity: 2, Flags: ro, Handler: cmdKeys},
		{Name: "SCAN", Arity: -2, Flags: ro, Handler: cmdScan},
		{Name: "DBSIZE", Arity: 1, Flags: ro | fast, Handler: cmdDBSize},
		{Name: "FLUSHDB", Arity: -1, Flags: rw | FlagAdmin, Handler: cmdFlushDB},
		{Name: "FLUSHALL", Arity: -1, Flags: rw | FlagAdmin, Handler: cmdFlushDB},
		{Name: "FLUSH", Arity: 1, Flags: rw | FlagAdmin, Handler: cmdFlushDB},

		// Connection-independent utilities
		{Name: "PING", Arity: -1, Flags: fast, Handler: cmdPing},
		{Name: "ECHO", Arity: 2, Flags: fast, Handler: cmdEcho},
	}
}

// arityMax wraps h with an upper bound on the argument count, verb included.
func arityMax(n int, name string, h Handler) Handler {
	return func(db *keyspace.DB, args [][]byte) (resp.Value, error) {
		if len(args)+1 > n {
			return resp.Value{}, domain.Arity(name)
		}
		return h(db, args)
	}
}

// Names returns the names of the built-in commands in table order.
func Names() []string {
	descs := builtins()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}
