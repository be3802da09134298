package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Executor runs one command line that is not handled locally.
type Executor func(ctx context.Context, args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	exec      Executor
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input, r.output = in, out
	}
}

// WithPrompt sets the prompt.
func WithPrompt(prompt string) Option {
	return func(r *REPL) { r.prompt = prompt }
}

// WithHistory sets the history store.
func WithHistory(h *History) Option {
	return func(r *REPL) { r.history = h }
}

// WithCompleter sets the completer used by help and typo hints.
func WithCompleter(c *Completer) Option {
	return func(r *REPL) { r.completer = c }
}

// New creates a new REPL instance.
func New(exec Executor, opts ...Option) *REPL {
	r := &REPL{
		input:     os.Stdin,
		output:    os.Stdout,
		prompt:    "tidekv> ",
		exec:      exec,
		completer: NewCompleter(nil),
		history:   NewHistory("", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads lines until EOF, exit, quit or ctx ends. History is loaded
// first and saved on return.
func (r *REPL) Run(ctx context.Context) error {
	if err := r.history.Load(); err != nil {
		fmt.Fprintf(r.output, "warning: load history: %v\n", err)
	}
	defer func() {
		if err := r.history.Save(); err != nil {
			fmt.Fprintf(r.output, "warning: save history: %v\n", err)
		}
	}()

	lines, stop := r.readLines()
	defer close(stop)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.output, r.prompt)

		var in readResult
		select {
		case in = <-lines:
		case <-ctx.Done():
			fmt.Fprintln(r.output)
			return nil
		}
		if errors.Is(in.err, io.EOF) {
			fmt.Fprintln(r.output)
			return nil
		}
		if in.err != nil {
			return in.err
		}

		line := strings.TrimSpace(in.line)
		if line == "" {
			continue
		}
		r.history.Add(line)

		args, err := SplitArgs(line)
		if err != nil {
			fmt.Fprintf(r.output, "(error) %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if done := r.local(ctx, args); done {
			return nil
		}
	}
}

type readResult struct {
	line string
	err  error
}

// readLines reads input in the background so a cancelled context ends
// Run even while the terminal is idle. A final unterminated line is
// delivered before the error that ended the input.
func (r *REPL) readLines() (<-chan readResult, chan struct{}) {
	lines := make(chan readResult)
	stop := make(chan struct{})
	go func() {
		reader := bufio.NewReader(r.input)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && line != "" {
				select {
				case lines <- readResult{line: line}:
				case <-stop:
					return
				}
			}
			if err != nil {
				line = ""
			}
			select {
			case lines <- readResult{line, err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines, stop
}

// local handles REPL-only commands. It returns true when the loop should
// end.
func (r *REPL) local(ctx context.Context, args []string) bool {
	switch strings.ToLower(args[0]) {
	case "exit", "quit":
		return true
	case "help":
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		for _, name := range r.completer.Complete(prefix) {
			fmt.Fprintln(r.output, name)
		}
		return false
	case "history":
		for i, e := range r.history.Entries() {
			fmt.Fprintf(r.output, "%4d  %s\n", i+1, e)
		}
		return false
	}

	if err := r.exec(ctx, args); err != nil {
		fmt.Fprintf(r.output, "(error) %v\n", err)
		if !r.completer.Known(args[0]) {
			if hints := r.completer.Complete(args[0]); len(hints) > 0 && len(hints) <= 5 {
				fmt.Fprintf(r.output, "did you mean: %s\n", strings.Join(hints, ", "))
			}
		}
	}
	return false
}
