package command

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tidekv/internal/core/command"
	"github.com/yndnr/tidekv/internal/server/httpserver/handler"
	"github.com/yndnr/tidekv/internal/server/respserver"
	"github.com/yndnr/tidekv/internal/storage"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// testEnv is a running RESP server and admin API backed by one keyspace.
type testEnv struct {
	db      *keyspace.DB
	resp    *respserver.Server
	admin   *httptest.Server
	persist *fakePersistence
	cfgPath string
}

func newTestEnv(t *testing.T, password string) *testEnv {
	t.Helper()
	t.Setenv("TIDEKV_CLI_HISTORY", filepath.Join(t.TempDir(), "history"))

	db := keyspace.New(keyspace.WithShards(4))
	cfg := respserver.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.RequirePass = password
	srv, err := respserver.New(cfg, command.New(db, command.WithLogger(discard)), respserver.WithLogger(discard))
	if err != nil {
		t.Fatalf("respserver.New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	persist := &fakePersistence{}
	h := handler.New(handler.Deps{Keyspace: db, Clients: srv, Persistence: persist}, discard)
	h.SetReady(true)
	admin := httptest.NewServer(h)
	t.Cleanup(admin.Close)

	return &testEnv{
		db:      db,
		resp:    srv,
		admin:   admin,
		persist: persist,
		cfgPath: filepath.Join(t.TempDir(), "cli.yaml"),
	}
}

// run executes the CLI against the environment with stdin set to in.
func (e *testEnv) run(t *testing.T, in string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	app := App()
	var out, errOut bytes.Buffer
	app.Reader = strings.NewReader(in)
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := []string{"tidekv-cli",
		"--config", e.cfgPath,
		"--server", e.resp.Addr().String(),
		"--admin", e.admin.URL,
	}
	err = app.Run(append(argv, args...))
	return out.String(), errOut.String(), err
}

type fakePersistence struct {
	snaps []*snapshot.Info
	err   error
}

func (p *fakePersistence) Save(context.Context) (*snapshot.Info, error) {
	if p.err != nil {
		return nil, p.err
	}
	info := &snapshot.Info{
		ID:        "01J0000000000000000000000" + string(rune('A'+len(p.snaps))),
		Backend:   "file",
		KeyCount:  3,
		CreatedAt: time.Now().UnixMilli(),
		Size:      2048,
	}
	p.snaps = append([]*snapshot.Info{info}, p.snaps...)
	return info, nil
}

func (p *fakePersistence) Snapshots(context.Context) ([]*snapshot.Info, error) {
	return p.snaps, p.err
}

func (p *fakePersistence) Status() storage.Status {
	return storage.Status{Backend: "file", LastSaveOK: true}
}
