package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tidekv/internal/cli/config"
	"github.com/yndnr/tidekv/internal/cli/connection"
	"github.com/yndnr/tidekv/internal/cli/output"
	"github.com/yndnr/tidekv/internal/cli/repl"
	"github.com/yndnr/tidekv/internal/core/command"
	"github.com/yndnr/tidekv/internal/protocol/resp"
)

// connectionCommands are served by the connection layer rather than the
// dispatcher table, so command.Names does not list them.
var connectionCommands = []string{
	"AUTH", "BGSAVE", "CLIENT", "INFO", "LASTSAVE", "QUIT", "SAVE",
}

// runRESP is the root action: with arguments it sends one command,
// without it starts the interactive mode.
func runRESP(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	args := c.Args().Slice()
	if len(args) == 0 {
		return s.interactive(c.Context)
	}

	repeat, workers := c.Int("repeat"), c.Int("concurrency")
	if repeat <= 1 && workers <= 1 {
		return s.once(c.Context, args)
	}
	return s.repeat(c.Context, args, repeat, workers, c.Duration("interval"))
}

func (s *session) once(ctx context.Context, args []string) error {
	opts, err := s.options()
	if err != nil {
		return err
	}
	client, err := connection.Dial(ctx, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	v, err := client.Do(ctx, args...)
	if err != nil {
		return err
	}
	return s.print(v)
}

// repeat sends args n times over a pool of workers connections and
// prints the last reply with a throughput summary.
func (s *session) repeat(ctx context.Context, args []string, n, workers int, interval time.Duration) error {
	if n < 1 {
		n = 1
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	opts, err := s.options()
	if err != nil {
		return err
	}
	pool := connection.NewPool(ctx, opts, workers)
	defer pool.Close(ctx)

	progress := output.NewProgress(s.errOut, strings.ToUpper(args[0]), int64(n))
	jobs := make(chan struct{})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		last     resp.Value
		haveLast bool
		firstErr error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				v, err := pool.Do(ctx, args...)
				if err == nil && v.IsError() {
					err = errors.New(v.Str)
				}
				progress.Add(err)

				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if err == nil || v.IsError() {
					last, haveLast = v, true
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- struct{}{}:
		case <-ctx.Done():
			break feed
		}
		if interval > 0 && workers == 1 && i < n-1 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	done, failed, elapsed := progress.Finish()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(done) / elapsed.Seconds()
	}
	fmt.Fprintf(s.errOut, "%d requests in %s over %d connections, %d failed, %.0f req/s\n",
		done, elapsed.Round(time.Millisecond), workers, failed, rate)

	if haveLast {
		if err := s.print(last); err != nil {
			return err
		}
	}
	if failed > 0 && failed == done {
		return firstErr
	}
	return nil
}

// interactive runs the REPL over one connection. A broken connection is
// redialed before the next command.
func (s *session) interactive(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := s.options()
	if err != nil {
		return err
	}
	client, err := connection.Dial(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if client != nil {
			client.Close()
		}
	}()

	exec := func(ctx context.Context, args []string) error {
		if client == nil {
			if client, err = connection.Dial(ctx, opts); err != nil {
				client = nil
				return err
			}
		}
		v, err := client.Do(ctx, args...)
		if err != nil {
			client.Close()
			client = nil
			return err
		}
		if v.IsError() {
			return errors.New(v.Str)
		}
		return s.print(v)
	}

	history := s.cfg.History
	if history == "" {
		history = config.DefaultHistoryPath()
	}
	r := repl.New(exec,
		repl.WithIO(s.in, s.out),
		repl.WithPrompt("tidekv "+s.conn.Server+"> "),
		repl.WithHistory(repl.NewHistory(history, repl.DefaultHistorySize)),
		repl.WithCompleter(repl.NewCompleter(append(command.Names(), connectionCommands...))),
	)
	return r.Run(ctx)
}
