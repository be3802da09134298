package repl

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// ====================
// SplitArgs
// ====================

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"GET foo", []string{"GET", "foo"}},
		{"  SET   k   v  ", []string{"SET", "k", "v"}},
		{`SET k "hello world"`, []string{"SET", "k", "hello world"}},
		{`SET k 'it\'s'`, []string{"SET", "k", "it's"}},
		{`SET k "a\nb\t\"c\""`, []string{"SET", "k", "a\nb\t\"c\""}},
		{`SET k "\x41\x42"`, []string{"SET", "k", "AB"}},
		{`SET k ""`, []string{"SET", "k", ""}},
		{`SET k 'no \n escape'`, []string{"SET", "k", `no \n escape`}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := SplitArgs(tt.line)
			if err != nil {
				t.Fatalf("SplitArgs: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitArgs_Errors(t *testing.T) {
	for _, line := range []string{`SET k "open`, `SET k 'open`, `SET k "a"b`, `SET k "trailing\`} {
		if _, err := SplitArgs(line); !errors.Is(err, ErrUnbalancedQuotes) {
			t.Errorf("SplitArgs(%q) err = %v", line, err)
		}
	}
}

// ====================
// Run
// ====================

type recorder struct {
	calls [][]string
	err   error
}

func (r *recorder) exec(_ context.Context, args []string) error {
	r.calls = append(r.calls, args)
	return r.err
}

func newTestREPL(in string, rec *recorder) (*REPL, *bytes.Buffer) {
	var out bytes.Buffer
	r := New(rec.exec,
		WithIO(strings.NewReader(in), &out),
		WithPrompt("> "),
		WithCompleter(NewCompleter([]string{"GET", "GETDEL", "SET", "HGET"})),
	)
	return r, &out
}

func TestREPL_Run_Exit(t *testing.T) {
	for _, in := range []string{"exit\n", "quit\n", "QUIT\n", ""} {
		rec := &recorder{}
		r, _ := newTestREPL(in, rec)
		if err := r.Run(context.Background()); err != nil {
			t.Errorf("Run(%q): %v", in, err)
		}
		if len(rec.calls) != 0 {
			t.Errorf("Run(%q) executed %v", in, rec.calls)
		}
	}
}

func TestREPL_Run_Executes(t *testing.T) {
	rec := &recorder{}
	r, out := newTestREPL("SET k \"v 1\"\n\nGET k", rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := [][]string{{"SET", "k", "v 1"}, {"GET", "k"}}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %q, want %q", rec.calls, want)
	}
	if c := strings.Count(out.String(), "> "); c != 4 {
		t.Errorf("prompts = %d, want 4", c)
	}
}

func TestREPL_Run_Errors(t *testing.T) {
	rec := &recorder{err: errors.New("ERR unknown command 'ge'")}
	r, out := newTestREPL("ge k\nSET \"x\n", rec)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := out.String()
	for _, want := range []string{"(error) ERR unknown command 'ge'", "did you mean: GET, GETDEL", "unbalanced quotes"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if len(rec.calls) != 1 {
		t.Errorf("calls = %q", rec.calls)
	}
}

func TestREPL_Help(t *testing.T) {
	rec := &recorder{}
	r, out := newTestREPL("help get\nhelp\n", rec)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Count(out.String(), "GETDEL\n"); got != 2 {
		t.Errorf("GETDEL listed %d times, want 2:\n%s", got, out)
	}
	if strings.Count(out.String(), "HGET\n") != 1 {
		t.Errorf("HGET should only be listed by bare help:\n%s", out)
	}
}

func TestREPL_HistoryPersisted(t *testing.T) {
	file := filepath.Join(t.TempDir(), "history")
	rec := &recorder{}
	var out bytes.Buffer
	r := New(rec.exec,
		WithIO(strings.NewReader("SET a 1\nAUTH secret\nhistory\n"), &out),
		WithHistory(NewHistory(file, 10)),
	)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "1  SET a 1") {
		t.Errorf("history output:\n%s", out.String())
	}

	h := NewHistory(file, 10)
	if err := h.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"SET a 1", "history"}
	if !reflect.DeepEqual(h.Entries(), want) {
		t.Errorf("entries = %q, want %q", h.Entries(), want)
	}
}

func TestREPL_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	r, _ := newTestREPL("GET k\n", rec)
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("calls after cancel = %q", rec.calls)
	}
}
