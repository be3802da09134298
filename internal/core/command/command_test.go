package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

// harness runs commands against a fresh keyspace with a manual clock.
type harness struct {
	t  *testing.T
	ms atomic.Int64
	db *keyspace.DB
	d  *Dispatcher
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t}
	h.ms.Store(1_700_000_000_000)
	h.db = keyspace.New(
		keyspace.WithShards(8),
		keyspace.WithClock(func() time.Time { return time.UnixMilli(h.ms.Load()) }),
	)
	h.d = New(h.db, opts...)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.ms.Add(d.Milliseconds())
}

func (h *harness) do(args ...string) resp.Value {
	h.t.Helper()
	v, _ := h.d.Execute(cmd(args...))
	return v
}

func cmd(args ...string) resp.Command {
	c := resp.Command{Name: strings.ToUpper(args[0])}
	for _, a := range args[1:] {
		c.Args = append(c.Args, []byte(a))
	}
	return c
}

func (h *harness) expect(want resp.Value, args ...string) {
	h.t.Helper()
	got := h.do(args...)
	if !got.Equal(want) {
		h.t.Errorf("%s = %q, want %q", strings.Join(args, " "), resp.Encode(got), resp.Encode(want))
	}
}

func (h *harness) expectErr(prefix string, args ...string) {
	h.t.Helper()
	got := h.do(args...)
	if !got.IsError() || !strings.HasPrefix(got.Str, prefix) {
		h.t.Errorf("%s = %q, want error starting with %q", strings.Join(args, " "), resp.Encode(got), prefix)
	}
}

// sortedMembers decodes an array of bulk strings into a sorted slice.
func sortedMembers(v resp.Value) []string {
	out := make([]string, 0, len(v.Array))
	for _, el := range v.Array {
		out = append(out, string(el.Bulk))
	}
	sort.Strings(out)
	return out
}

var (
	ok   = resp.OK()
	null = resp.NilBulk()
)

func bulk(s string) resp.Value { return resp.BulkString(s) }
func num(n int64) resp.Value   { return resp.Integer(n) }
func bulks(items ...string) resp.Value {
	return resp.StringArray(items)
}

// ============================================================
// Dispatcher Tests
// ============================================================

func TestExecute_UnknownCommand(t *testing.T) {
	h := newHarness(t)
	v, err := h.d.Execute(cmd("NOPE", "a", "b"))
	if !domain.IsKind(err, domain.KindUnknownCommand) {
		t.Fatalf("error = %v, want unknown command", err)
	}
	if want := "ERR unknown command 'NOPE', with args beginning with: 'a' 'b' "; v.Str != want {
		t.Errorf("reply = %q, want %q", v.Str, want)
	}
}

func TestExecute_ArityCheckedBeforeKeyspace(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		args []string
		name string
	}{
		{[]string{"GET"}, "get"},
		{[]string{"GET", "a", "b"}, "get"},
		{[]string{"SET", "k"}, "set"},
		{[]string{"MSET", "a", "1", "b"}, "mset"},
		{[]string{"HSET", "h", "f", "v", "g"}, "hset"},
		{[]string{"LPOP", "l", "1", "2"}, "lpop"},
		{[]string{"PING", "a", "b"}, "ping"},
		{[]string{"DBSIZE", "x"}, "dbsize"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			v, err := h.d.Execute(cmd(tt.args...))
			if !domain.IsKind(err, domain.KindArity) {
				t.Fatalf("error = %v, want arity error", err)
			}
			want := fmt.Sprintf("ERR wrong number of arguments for '%s' command", tt.name)
			if v.Str != want {
				t.Errorf("reply = %q, want %q", v.Str, want)
			}
		})
	}

	if n := h.db.Len(); n != 0 {
		t.Errorf("keyspace has %d keys after rejected commands", n)
	}
}

func TestExecute_PanicBecomesInternalError(t *testing.T) {
	h := newHarness(t)
	h.d.table["BOOM"] = &Descriptor{
		Name: "BOOM", Arity: 1,
		Handler: func(*keyspace.DB, [][]byte) (resp.Value, error) { panic("kaboom") },
	}

	v, err := h.d.Execute(cmd("BOOM"))
	if !domain.IsKind(err, domain.KindInternal) {
		t.Fatalf("error = %v, want internal", err)
	}
	if v.Str != "ERR internal error" {
		t.Errorf("reply = %q", v.Str)
	}
	if !domain.KindOf(err).Terminal() {
		t.Error("internal errors must be terminal for the connection")
	}
}

func TestExecute_Observer(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]error{}
	h := newHarness(t, WithObserver(func(name string, _ time.Duration, err error) {
		mu.Lock()
		seen[name] = err
		mu.Unlock()
	}))

	h.do("SET", "k", "v")
	h.do("LPUSH", "k", "x")
	h.do("WHAT")

	if err, ok := seen["SET"]; !ok || err != nil {
		t.Errorf("SET observed err = %v, present = %v", err, ok)
	}
	if !errors.Is(seen["LPUSH"], domain.ErrWrongType) {
		t.Errorf("LPUSH observed err = %v", seen["LPUSH"])
	}
	if !domain.IsKind(seen["WHAT"], domain.KindUnknownCommand) {
		t.Errorf("WHAT observed err = %v", seen["WHAT"])
	}
}

func TestDescriptor_Keys(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"GET", "a"}, []string{"a"}},
		{[]string{"MSET", "a", "1", "b", "2"}, []string{"a", "b"}},
		{[]string{"DEL", "a", "b", "c"}, []string{"a", "b", "c"}},
		{[]string{"RENAME", "a", "b"}, []string{"a", "b"}},
		{[]string{"OBJECT", "ENCODING", "k"}, []string{"k"}},
		{[]string{"PING"}, nil},
	}
	for _, tt := range tests {
		desc, ok := h.d.Lookup(tt.args[0])
		if !ok {
			t.Fatalf("Lookup(%s) failed", tt.args[0])
		}
		got := desc.Keys(cmd(tt.args...).Args)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("%v keys = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestCommand_Introspection(t *testing.T) {
	h := newHarness(t)

	count := h.do("COMMAND", "COUNT")
	if count.Int != int64(len(h.d.Commands())) {
		t.Errorf("COMMAND COUNT = %d, want %d", count.Int, len(h.d.Commands()))
	}
	h.expect(bulks("a", "b"), "COMMAND", "GETKEYS", "MSET", "a", "1", "b", "2")
	h.expectErr("ERR The command has no key arguments", "COMMAND", "GETKEYS", "PING")

	info := h.do("COMMAND", "INFO", "get", "nope")
	if len(info.Array) != 2 || !info.Array[1].Null {
		t.Fatalf("COMMAND INFO = %q", resp.Encode(info))
	}
	if string(info.Array[0].Array[0].Bulk) != "get" || info.Array[0].Array[1].Int != 2 {
		t.Errorf("COMMAND INFO get = %q", resp.Encode(info.Array[0]))
	}
}

// ============================================================
// End-to-end Scenario
// ============================================================

func TestScenario_SetGetDel(t *testing.T) {
	h := newHarness(t)
	h.expect(ok, "SET", "foo", "bar")
	h.expect(bulk("bar"), "GET", "foo")
	h.expect(num(1), "DEL", "foo")
	h.expect(null, "GET", "foo")
	h.expect(num(0), "DEL", "foo")
}

func TestScenario_CaseInsensitiveVerb(t *testing.T) {
	h := newHarness(t)
	v, err := h.d.Execute(resp.Command{Name: "SET", Args: [][]byte{[]byte("k"), []byte("v")}})
	if err != nil || !v.Equal(ok) {
		t.Fatalf("SET = %v, %v", v, err)
	}
	// Decoded commands carry upper-cased names.
	cmds, _, _ := resp.DecodeCommands([]byte("*2\r\n$3\r\ngEt\r\n$1\r\nk\r\n"))
	v, _ = h.d.Execute(cmds[0])
	if !v.Equal(bulk("v")) {
		t.Errorf("gEt = %q", resp.Encode(v))
	}
}

func TestConcurrentIncr(t *testing.T) {
	h := newHarness(t)
	const workers, perWorker = 16, 250

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := h.d.Execute(cmd("INCR", "counter")); err != nil {
					t.Errorf("INCR error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	h.expect(bulk(fmt.Sprint(workers*perWorker)), "GET", "counter")
}

func TestTypeSafety_WrongTypeLeavesValue(t *testing.T) {
	h := newHarness(t)
	h.expect(num(1), "SADD", "k", "x")
	h.expectErr("WRONGTYPE", "LPUSH", "k", "y")
	h.expect(bulks("x"), "SMEMBERS", "k")

	wrongType := [][]string{
		{"GET", "k"}, {"APPEND", "k", "a"}, {"INCR", "k"}, {"STRLEN", "k"},
		{"LRANGE", "k", "0", "-1"}, {"LPOP", "k"}, {"HSET", "k", "f", "v"},
		{"HGETALL", "k"}, {"ZADD", "k", "1", "m"}, {"ZRANGE", "k", "0", "-1"},
		{"BF.ADD", "k", "i"}, {"SET", "k", "v", "GET"},
	}
	for _, args := range wrongType {
		h.expectErr("WRONGTYPE", args...)
	}
	h.expect(bulks("x"), "SMEMBERS", "k")
}

func TestSAdd_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.expect(num(1), "SADD", "k", "x")
	for i := 0; i < 3; i++ {
		h.expect(num(0), "SADD", "k", "x")
	}
	h.expect(bulks("x"), "SMEMBERS", "k")
}
