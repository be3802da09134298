package command

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/yndnr/tidekv/internal/protocol/resp"
)

// ============================================================
// Expiry Commands
// ============================================================

func TestExpire_Family(t *testing.T) {
	h := newHarness(t)
	h.expect(num(0), "EXPIRE", "missing", "10")

	h.expect(ok, "SET", "k", "v")
	h.expect(num(-1), "TTL", "k")
	h.expect(num(1), "EXPIRE", "k", "10")
	h.expect(num(10), "TTL", "k")
	h.expect(num(10000), "PTTL", "k")
	h.expect(num(1), "PEXPIRE", "k", "2500")
	h.expect(num(2500), "PTTL", "k")

	now := h.ms.Load()
	h.expect(num(1), "PEXPIREAT", "k", itoa(now+4000))
	h.expect(num(4), "TTL", "k")
	h.expect(num(1), "EXPIREAT", "k", itoa(now/1000+100))

	h.expect(num(1), "PERSIST", "k")
	h.expect(num(0), "PERSIST", "k")
	h.expect(num(-1), "TTL", "k")
	h.expect(num(-2), "TTL", "missing")
	h.expect(num(-2), "PTTL", "missing")

	h.expectErr("ERR value is not an integer", "EXPIRE", "k", "soon")
}

func TestExpire_NonPositiveDeletes(t *testing.T) {
	h := newHarness(t)
	h.expect(ok, "SET", "a", "v")
	h.expect(num(1), "EXPIRE", "a", "0")
	h.expect(num(0), "EXISTS", "a")

	h.expect(ok, "SET", "b", "v")
	h.expect(num(1), "PEXPIRE", "b", "-100")
	h.expect(num(0), "EXISTS", "b")

	h.expect(ok, "SET", "c", "v")
	h.expect(num(1), "EXPIREAT", "c", "-1")
	h.expect(num(0), "EXISTS", "c")
}

func TestExpire_Conditions(t *testing.T) {
	h := newHarness(t)
	h.expect(ok, "SET", "k", "v")

	h.expect(num(0), "EXPIRE", "k", "100", "XX")
	h.expect(num(0), "EXPIRE", "k", "100", "GT")
	h.expect(num(1), "EXPIRE", "k", "100", "LT")
	h.expect(num(0), "EXPIRE", "k", "50", "NX")
	h.expect(num(0), "EXPIRE", "k", "50", "GT")
	h.expect(num(1), "EXPIRE", "k", "200", "GT")
	h.expect(num(1), "EXPIRE", "k", "150", "XX")
	h.expect(num(150), "TTL", "k")

	h.expectErr("ERR NX and XX, GT or LT options", "EXPIRE", "k", "1", "NX", "XX")
	h.expectErr("ERR GT and LT options", "EXPIRE", "k", "1", "GT", "LT")
	h.expectErr("ERR Unsupported option", "EXPIRE", "k", "1", "SOON")
}

func TestExpire_ActiveKeysSurviveUntilDeadline(t *testing.T) {
	h := newHarness(t)
	h.expect(num(1), "RPUSH", "l", "a")
	h.expect(num(1), "PEXPIRE", "l", "100")

	h.advance(99 * time.Millisecond)
	h.expect(num(1), "LLEN", "l")

	h.advance(time.Millisecond)
	h.expect(num(0), "LLEN", "l")
	h.expect(resp.SimpleString("none"), "TYPE", "l")
	h.expect(num(1), "RPUSH", "l", "b")
	h.expect(num(-1), "TTL", "l")
}

// ============================================================
// Keyspace Commands
// ============================================================

func TestDelExists(t *testing.T) {
	h := newHarness(t)
	h.expect(ok, "MSET", "a", "1", "b", "2")
	h.expect(num(3), "EXISTS", "a", "b", "a")
	h.expect(num(2), "DEL", "a", "b", "c", "a")
	h.expect(num(0), "EXISTS", "a", "b")
}

func TestType(t *testing.T) {
	h := newHarness(t)
	h.do("SET", "s", "v")
	h.do("RPUSH", "l", "v")
	h.do("HSET", "h", "f", "v")
	h.do("SADD", "set", "v")
	h.do("ZADD", "z", "1", "v")

	tests := map[string]string{
		"s": "string", "l": "list", "h": "hash", "set": "set", "z": "zset", "none": "none",
	}
	for key, want := range tests {
		h.expect(resp.SimpleString(want), "TYPE", key)
	}
}

func TestObject(t *testing.T) {
	h := newHarness(t)
	h.do("SET", "int", "12345")
	h.do("SET", "short", "hello")
	h.do("RPUSH", "l", "a")
	h.do("SADD", "ints", "1", "2")

	h.expect(bulk("int"), "OBJECT", "ENCODING", "int")
	h.expect(bulk("embstr"), "OBJECT", "encoding", "short")
	h.expect(bulk("listpack"), "OBJECT", "ENCODING", "l")
	h.expect(bulk("intset"), "OBJECT", "ENCODING", "ints")
	h.expect(null, "OBJECT", "ENCODING", "missing")
	h.expect(num(1), "OBJECT", "REFCOUNT", "l")

	h.advance(5 * time.Second)
	h.expect(num(5), "OBJECT", "IDLETIME", "short")
	h.do("GET", "short")
	h.expect(num(0), "OBJECT", "IDLETIME", "short")

	h.expectErr("ERR unknown subcommand 'nope'", "OBJECT", "nope", "k")
	h.expectErr("ERR wrong number of arguments for 'object|encoding' command", "OBJECT", "ENCODING")
	if v := h.do("OBJECT", "HELP"); len(v.Array) == 0 {
		t.Errorf("OBJECT HELP = %q", resp.Encode(v))
	}
}

func TestKeysAndScan(t *testing.T) {
	h := newHarness(t)
	var want []string
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("user:%02d", i)
		want = append(want, key)
		h.do("SET", key, "v")
	}
	h.do("RPUSH", "queue", "x")

	if got := h.do("KEYS", "user:*"); len(got.Array) != 50 {
		t.Errorf("KEYS user:* returned %d keys", len(got.Array))
	}
	h.expect(bulks("user:07"), "KEYS", "user:07")
	h.expect(bulks("queue"), "KEYS", "q?eue")
	h.expect(num(51), "DBSIZE")

	var got []string
	cursor := "0"
	for i := 0; ; i++ {
		if i > 100 {
			t.Fatal("SCAN did not terminate")
		}
		v := h.do("SCAN", cursor, "MATCH", "user:*", "COUNT", "5")
		if len(v.Array) != 2 {
			t.Fatalf("SCAN reply = %q", resp.Encode(v))
		}
		cursor = string(v.Array[0].Bulk)
		got = append(got, sortedMembers(v.Array[1])...)
		if cursor == "0" {
			break
		}
	}
	sort.Strings(got)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("SCAN visited %d keys, want %d", len(got), len(want))
	}

	listsOnly := h.do("SCAN", "0", "TYPE", "list", "COUNT", "1000")
	if keys := sortedMembers(listsOnly.Array[1]); fmt.Sprint(keys) != "[queue]" {
		t.Errorf("SCAN TYPE list = %v", keys)
	}

	h.expectErr("ERR invalid cursor", "SCAN", "abc")
	h.expectErr("ERR syntax error", "SCAN", "0", "MATCH")
	h.expectErr("ERR syntax error", "SCAN", "0", "COUNT", "0")
	h.expectErr("ERR unknown type name", "SCAN", "0", "TYPE", "blob")
}

func TestRename(t *testing.T) {
	h := newHarness(t)
	h.expectErr("ERR no such key", "RENAME", "a", "b")

	h.expect(ok, "SET", "a", "1", "EX", "100")
	h.expect(ok, "SET", "b", "2")
	h.expect(ok, "RENAME", "a", "b")
	h.expect(bulk("1"), "GET", "b")
	h.expect(num(100), "TTL", "b")
	h.expect(num(0), "EXISTS", "a")
	h.expect(ok, "RENAME", "b", "b")

	h.expect(ok, "SET", "c", "3")
	h.expect(num(0), "RENAMENX", "b", "c")
	h.expect(num(1), "RENAMENX", "b", "d")
	h.expect(bulk("1"), "GET", "d")
	h.expectErr("ERR no such key", "RENAMENX", "b", "e")
}

func TestFlush(t *testing.T) {
	h := newHarness(t)
	h.do("MSET", "a", "1", "b", "2")
	h.expect(ok, "FLUSHDB")
	h.expect(num(0), "DBSIZE")

	h.do("SET", "a", "1")
	h.expect(ok, "FLUSH")
	h.expect(num(0), "DBSIZE")
	h.expect(ok, "FLUSHALL", "ASYNC")
	h.expectErr("ERR syntax error", "FLUSHDB", "LATER")
}

func TestPingEcho(t *testing.T) {
	h := newHarness(t)
	h.expect(resp.SimpleString("PONG"), "PING")
	h.expect(bulk("hi"), "PING", "hi")
	h.expect(bulk("hello world"), "ECHO", "hello world")
}
