package command

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
	"github.com/yndnr/tidekv/internal/telemetry/logger"
)

// slowlogArgLen caps each argument printed by the slow log.
const slowlogArgLen = 64

// Flag describes a command's behavior.
type Flag uint16

const (
	// FlagWrite marks commands that may modify the keyspace.
	FlagWrite Flag = 1 << iota
	// FlagReadOnly marks commands that never modify the keyspace.
	FlagReadOnly
	// FlagFast marks O(1) or O(log N) commands.
	FlagFast
	// FlagAdmin marks commands that affect the whole keyspace.
	FlagAdmin
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagWrite, "write"},
	{FlagReadOnly, "readonly"},
	{FlagFast, "fast"},
	{FlagAdmin, "admin"},
}

// Names returns the flag names in a fixed order.
func (f Flag) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}

// Handler executes one command against the keyspace. args excludes the verb.
// A returned error is rendered as the error reply.
type Handler func(db *keyspace.DB, args [][]byte) (resp.Value, error)

// Descriptor is one entry of the command table.
type Descriptor struct {
	Name string
	// Arity counts the verb: N means exactly N, -N means at least N.
	Arity int
	Flags Flag
	// FirstKey, LastKey and Step locate key arguments, 1-based with the
	// verb at 0. LastKey -1 means the last argument. Zero means no keys.
	FirstKey int
	LastKey  int
	Step     int
	Handler  Handler
}

// Has reports whether the descriptor carries flag f.
func (d *Descriptor) Has(f Flag) bool {
	return d.Flags&f != 0
}

// CheckArity validates the argument count, verb included.
func (d *Descriptor) CheckArity(n int) bool {
	if d.Arity >= 0 {
		return n == d.Arity
	}
	return n >= -d.Arity
}

// Keys extracts the key arguments of a call. args excludes the verb.
func (d *Descriptor) Keys(args [][]byte) []string {
	if d.FirstKey == 0 {
		return nil
	}
	last := d.LastKey
	if last < 0 {
		last = len(args) + 1 + last
	}
	step := max(d.Step, 1)
	var keys []string
	for i := d.FirstKey; i <= last && i-1 < len(args); i += step {
		keys = append(keys, string(args[i-1]))
	}
	return keys
}

// Observer is notified after every executed command.
type Observer func(name string, elapsed time.Duration, err error)

// Dispatcher routes decoded commands to their handlers.
type Dispatcher struct {
	db       *keyspace.DB
	table    map[string]*Descriptor
	logger   *slog.Logger
	observer Observer
	slowlog  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for internal errors and slow commands.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithObserver registers a per-command callback, typically metrics.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithSlowLog logs commands slower than threshold at warn level.
// Zero disables it.
func WithSlowLog(threshold time.Duration) Option {
	return func(d *Dispatcher) {
		d.slowlog = threshold
	}
}

// New creates a dispatcher over db with the built-in command table.
func New(db *keyspace.DB, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		db:     db,
		table:  make(map[string]*Descriptor),
		logger: slog.Default(),
	}
	for _, desc := range builtins() {
		d.table[desc.Name] = desc
	}
	d.table["COMMAND"] = &Descriptor{
		Name: "COMMAND", Arity: -1, Flags: FlagReadOnly,
		Handler: d.commandInfo,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DB returns the keyspace the dispatcher executes against.
func (d *Dispatcher) DB() *keyspace.DB {
	return d.db
}

// Lookup returns the descriptor for an upper-cased verb.
func (d *Dispatcher) Lookup(name string) (*Descriptor, bool) {
	desc, ok := d.table[name]
	return desc, ok
}

// Commands returns every descriptor sorted by name.
func (d *Dispatcher) Commands() []*Descriptor {
	out := make([]*Descriptor, 0, len(d.table))
	for _, desc := range d.table {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs cmd and returns its reply. The returned error is the failure
// the reply reports, if any; callers use its kind to decide whether the
// connection survives. Arity and unknown verbs are rejected before the
// keyspace is touched.
func (d *Dispatcher) Execute(cmd resp.Command) (resp.Value, error) {
	desc, ok := d.table[cmd.Name]
	if !ok {
		err := domain.UnknownCommand(cmd.Name, cmd.Args)
		d.observe(cmd.Name, 0, err)
		return resp.Err(err), err
	}
	if !desc.CheckArity(cmd.Arity()) {
		err := domain.Arity(desc.Name)
		d.observe(desc.Name, 0, err)
		return resp.Err(err), err
	}

	start := time.Now()
	reply, err := d.call(desc, cmd.Args)
	elapsed := time.Since(start)

	if d.slowlog > 0 && elapsed >= d.slowlog {
		d.logger.Warn("slow command",
			"command", desc.Name,
			"args", logger.RedactArgs(desc.Name, cmd.Args, slowlogArgLen),
			"elapsed", elapsed)
	}
	d.observe(desc.Name, elapsed, err)

	if err != nil {
		return resp.Err(err), err
	}
	return reply, nil
}

// call runs the handler, turning a panic into an internal error.
func (d *Dispatcher) call(desc *Descriptor, args [][]byte) (reply resp.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Internal(fmt.Errorf("panic in %s: %v", desc.Name, r))
			d.logger.Error("command panicked",
				"command", desc.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	return desc.Handler(d.db, args)
}

func (d *Dispatcher) observe(name string, elapsed time.Duration, err error) {
	if d.observer != nil {
		d.observer(name, elapsed, err)
	}
}

// commandInfo implements COMMAND [COUNT | LIST | INFO name... | GETKEYS cmd args...].
func (d *Dispatcher) commandInfo(_ *keyspace.DB, args [][]byte) (resp.Value, error) {
	if len(args) == 0 {
		descs := d.Commands()
		vals := make([]resp.Value, len(descs))
		for i, desc := range descs {
			vals[i] = describe(desc)
		}
		return resp.Array(vals...), nil
	}

	switch sub := upper(args[0]); sub {
	case "COUNT":
		return resp.Integer(int64(len(d.table))), nil
	case "LIST":
		descs := d.Commands()
		names := make([]string, len(descs))
		for i, desc := range descs {
			names[i] = strings.ToLower(desc.Name)
		}
		return resp.StringArray(names), nil
	case "INFO":
		vals := make([]resp.Value, 0, len(args)-1)
		for _, a := range args[1:] {
			if desc, ok := d.table[upper(a)]; ok {
				vals = append(vals, describe(desc))
			} else {
				vals = append(vals, resp.NilArray())
			}
		}
		return resp.Array(vals...), nil
	case "GETKEYS":
		if len(args) < 2 {
			return resp.Value{}, domain.Arity("command|getkeys")
		}
		desc, ok := d.table[upper(args[1])]
		if !ok {
			return resp.Value{}, domain.New(domain.KindFormat, "Invalid command specified")
		}
		if !desc.CheckArity(len(args) - 1) {
			return resp.Value{}, domain.New(domain.KindFormat, "Invalid number of arguments specified for command")
		}
		keys := desc.Keys(args[2:])
		if len(keys) == 0 {
			return resp.Value{}, domain.New(domain.KindFormat, "The command has no key arguments")
		}
		return resp.StringArray(keys), nil
	default:
		return resp.Value{}, domain.UnknownSubcommand("command", sub)
	}
}

func describe(desc *Descriptor) resp.Value {
	flags := desc.Flags.Names()
	flagVals := make([]resp.Value, len(flags))
	for i, f := range flags {
		flagVals[i] = resp.SimpleString(f)
	}
	return resp.Array(
		resp.BulkString(strings.ToLower(desc.Name)),
		resp.Integer(int64(desc.Arity)),
		resp.Array(flagVals...),
		resp.Integer(int64(desc.FirstKey)),
		resp.Integer(int64(desc.LastKey)),
		resp.Integer(int64(desc.Step)),
	)
}
