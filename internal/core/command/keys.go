package command

import (
	"strconv"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/core/value"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

// DEL key [key ...]
func cmdDel(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	keys := keyList(args)
	err = db.Update(keys, func(tx *keyspace.Txn) error {
		n := 0
		for _, key := range keys {
			if tx.Delete(key) {
				n++
			}
		}
		reply = resp.Integer(int64(n))
		return nil
	})
	return reply, err
}

// EXISTS key [key ...]. Repeated keys are counted each time.
func cmdExists(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	keys := keyList(args)
	err = db.View(keys, func(tx *keyspace.Txn) error {
		n := 0
		for _, key := range keys {
			if tx.Exists(key) {
				n++
			}
		}
		reply = resp.Integer(int64(n))
		return nil
	})
	return reply, err
}

var (
	errExpireNX   = domain.New(domain.KindFormat, "NX and XX, GT or LT options at the same time are not compatible")
	errExpireGTLT = domain.New(domain.KindFormat, "GT and LT options at the same time are not compatible")
)

// expireCond is the optional NX|XX|GT|LT condition of the EXPIRE family.
type expireCond struct {
	nx, xx, gt, lt bool
}

func parseExpireCond(args [][]byte) (expireCond, error) {
	var c expireCond
	for _, a := range args {
		switch upper(a) {
		case "NX":
			c.nx = true
		case "XX":
			c.xx = true
		case "GT":
			c.gt = true
		case "LT":
			c.lt = true
		default:
			return c, domain.Newf(domain.KindFormat, "Unsupported option %s", a)
		}
	}
	if c.nx && (c.xx || c.gt || c.lt) {
		return c, errExpireNX
	}
	if c.gt && c.lt {
		return c, errExpireGTLT
	}
	return c, nil
}

// allows reports whether the condition permits replacing cur with next.
// Zero cur means no expiry, which counts as infinite.
func (c expireCond) allows(cur, next int64) bool {
	switch {
	case c.nx:
		return cur == 0
	case c.xx:
		return cur != 0
	case c.gt:
		return cur != 0 && next > cur
	case c.lt:
		return cur == 0 || next < cur
	}
	return true
}

// expireGeneric implements EXPIRE, PEXPIRE, EXPIREAT and PEXPIREAT.
func expireGeneric(name string, unit expireUnit) Handler {
	return func(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
		key := string(args[0])
		n, err := parseInt(args[1])
		if err != nil {
			return reply, err
		}
		cond, err := parseExpireCond(args[2:])
		if err != nil {
			return reply, err
		}

		err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
			e, ok := tx.Peek(key)
			if !ok {
				reply = resp.Integer(0)
				return nil
			}
			at, ok := unit.at(n, tx.Now())
			if !ok {
				return domain.InvalidExpire(name)
			}
			if !cond.allows(e.ExpireAt, at) {
				reply = resp.Integer(0)
				return nil
			}
			if at <= 0 {
				// Absolute instants before the epoch still mean "already expired".
				tx.Delete(key)
			} else {
				tx.SetExpire(key, at)
			}
			reply = resp.Integer(1)
			return nil
		})
		return reply, err
	}
}

// PERSIST key
func cmdPersist(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.Update([]string{key}, func(tx *keyspace.Txn) error {
		e, ok := tx.Peek(key)
		if !ok || e.ExpireAt == 0 {
			reply = resp.Integer(0)
			return nil
		}
		tx.SetExpire(key, 0)
		reply = resp.Integer(1)
		return nil
	})
	return reply, err
}

// ttlGeneric implements TTL and PTTL: -2 when absent, -1 without expiry.
func ttlGeneric(millis bool) Handler {
	return func(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
		key := string(args[0])
		err = db.View([]string{key}, func(tx *keyspace.Txn) error {
			e, ok := tx.Peek(key)
			switch {
			case !ok:
				reply = resp.Integer(-2)
			case e.ExpireAt == 0:
				reply = resp.Integer(-1)
			case millis:
				reply = resp.Integer(e.ExpireAt - tx.Now())
			default:
				reply = resp.Integer((e.ExpireAt - tx.Now() + 500) / 1000)
			}
			return nil
		})
		return reply, err
	}
}

// TYPE key
func cmdType(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	key := string(args[0])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		e, ok := tx.Peek(key)
		if !ok {
			reply = resp.SimpleString("none")
			return nil
		}
		reply = resp.SimpleString(e.Value.Type().String())
		return nil
	})
	return reply, err
}

var objectHelp = []string{
	"OBJECT <subcommand> [<arg> [value] [opt] ...]. Subcommands are:",
	"ENCODING <key>",
	"    Return the kind of internal representation used in order to store the value",
	"    associated with a <key>.",
	"IDLETIME <key>",
	"    Return the idle time of a <key>, that is the approximated number of",
	"    seconds elapsed since the last access to the key.",
	"REFCOUNT <key>",
	"    Return the number of references of the value associated with the specified",
	"    <key>.",
	"HELP",
	"    Print this help.",
}

// OBJECT ENCODING|IDLETIME|REFCOUNT key, OBJECT HELP
func cmdObject(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	sub := upper(args[0])
	if sub == "HELP" && len(args) == 1 {
		vals := make([]resp.Value, len(objectHelp))
		for i, line := range objectHelp {
			vals[i] = resp.SimpleString(line)
		}
		return resp.Array(vals...), nil
	}
	switch sub {
	case "ENCODING", "IDLETIME", "REFCOUNT":
	default:
		return reply, domain.UnknownSubcommand("object", string(args[0]))
	}
	if len(args) != 2 {
		return reply, domain.Arity("object|" + sub)
	}

	key := string(args[1])
	err = db.View([]string{key}, func(tx *keyspace.Txn) error {
		e, ok := tx.Peek(key)
		if !ok {
			reply = resp.NilBulk()
			return nil
		}
		switch sub {
		case "ENCODING":
			reply = resp.BulkString(e.Value.Encoding())
		case "IDLETIME":
			reply = resp.Integer((tx.Now() - e.AccessedAt()) / 1000)
		case "REFCOUNT":
			reply = resp.Integer(1)
		}
		return nil
	})
	return reply, err
}

// KEYS pattern
func cmdKeys(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	return resp.StringArray(db.Keys(string(args[0]))), nil
}

// SCAN cursor [MATCH pattern] [COUNT count] [TYPE type]
func cmdScan(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	cursor, err := strconv.ParseUint(string(args[0]), 10, 64)
	if err != nil {
		return resp.Value{}, domain.ErrInvalidCursor
	}

	var opts keyspace.ScanOptions
	rest := args[1:]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return resp.Value{}, domain.ErrSyntax
		}
		switch upper(rest[0]) {
		case "MATCH":
			opts.Match = string(rest[1])
		case "COUNT":
			n, err := parseInt(rest[1])
			if err != nil {
				return resp.Value{}, err
			}
			if n < 1 {
				return resp.Value{}, domain.ErrSyntax
			}
			opts.Count = int(min(n, 1<<20))
		case "TYPE":
			t, ok := value.ParseType(string(rest[1]))
			if !ok {
				return resp.Value{}, domain.Newf(domain.KindFormat, "unknown type name '%s'", rest[1])
			}
			opts.Type = t
		default:
			return resp.Value{}, domain.ErrSyntax
		}
		rest = rest[2:]
	}

	next, keys := db.Scan(cursor, opts)
	return resp.Array(
		resp.BulkString(strconv.FormatUint(next, 10)),
		resp.StringArray(keys),
	), nil
}

// RENAME key newkey
func cmdRename(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	src, dst := string(args[0]), string(args[1])
	err := db.Update([]string{src, dst}, func(tx *keyspace.Txn) error {
		return tx.Rename(src, dst)
	})
	if err != nil {
		return resp.Value{}, err
	}
	return resp.OK(), nil
}

// RENAMENX key newkey
func cmdRenameNX(db *keyspace.DB, args [][]byte) (reply resp.Value, err error) {
	src, dst := string(args[0]), string(args[1])
	err = db.Update([]string{src, dst}, func(tx *keyspace.Txn) error {
		if !tx.Exists(src) {
			return domain.ErrNoSuchKey
		}
		if tx.Exists(dst) {
			reply = resp.Integer(0)
			return nil
		}
		reply = resp.Integer(1)
		return tx.Rename(src, dst)
	})
	return reply, err
}

// DBSIZE
func cmdDBSize(db *keyspace.DB, _ [][]byte) (resp.Value, error) {
	return resp.Integer(int64(db.Len())), nil
}

// FLUSHDB [ASYNC|SYNC]. Flushing is always synchronous.
func cmdFlushDB(db *keyspace.DB, args [][]byte) (resp.Value, error) {
	if len(args) > 1 {
		return resp.Value{}, domain.ErrSyntax
	}
	if len(args) == 1 {
		if m := upper(args[0]); m != "ASYNC" && m != "SYNC" {
			return resp.Value{}, domain.ErrSyntax
		}
	}
	db.Flush()
	return resp.OK(), nil
}

// PING [message]
func cmdPing(_ *keyspace.DB, args [][]byte) (resp.Value, error) {
	switch len(args) {
	case 0:
		return resp.SimpleString("PONG"), nil
	case 1:
		return resp.Bulk(args[0]), nil
	default:
		return resp.Value{}, domain.Arity("ping")
	}
}

// ECHO message
func cmdEcho(_ *keyspace.DB, args [][]byte) (resp.Value, error) {
	return resp.Bulk(args[0]), nil
}
