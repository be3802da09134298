package command

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tidekv/internal/cli/output"
)

// AdminCommand returns the admin subcommand group. It talks to the
// server's HTTP admin API rather than the RESP port.
func AdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Server administration over the admin HTTP API",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server status",
				Action: adminStatus,
			},
			{
				Name:   "health",
				Usage:  "Check liveness and readiness",
				Action: adminHealth,
			},
			{
				Name:   "config",
				Usage:  "Show the running server configuration (secrets redacted)",
				Action: adminConfig,
			},
			{
				Name:  "snapshot",
				Usage: "Snapshot management",
				Subcommands: []*cli.Command{
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "List snapshots, newest first",
						Action:  snapshotList,
					},
					{
						Name:   "create",
						Usage:  "Take a snapshot now",
						Action: snapshotCreate,
					},
				},
			},
		},
	}
}

// Mirrors of the admin API payloads. Only the fields the CLI shows.
type (
	statusView struct {
		Build struct {
			Version   string `json:"version" yaml:"version"`
			Commit    string `json:"commit" yaml:"commit"`
			BuildTime string `json:"build_time" yaml:"build_time"`
			GoVersion string `json:"go_version" yaml:"go_version"`
		} `json:"build" yaml:"build"`
		StartedAt time.Time `json:"started_at" yaml:"started_at"`
		Uptime    string    `json:"uptime" yaml:"uptime"`
		Keyspace  struct {
			Keys         int    `json:"keys" yaml:"keys"`
			VolatileKeys int    `json:"volatile_keys" yaml:"volatile_keys"`
			ExpiredKeys  uint64 `json:"expired_keys" yaml:"expired_keys"`
		} `json:"keyspace" yaml:"keyspace"`
		Clients *struct {
			ConnectedClients    int   `json:"connected_clients" yaml:"connected_clients"`
			TotalConnections    int64 `json:"total_connections" yaml:"total_connections"`
			RejectedConnections int64 `json:"rejected_connections" yaml:"rejected_connections"`
			TotalCommands       int64 `json:"total_commands" yaml:"total_commands"`
		} `json:"clients,omitempty" yaml:"clients,omitempty"`
		Persistence *struct {
			Backend          string `json:"backend" yaml:"backend"`
			WALEnabled       bool   `json:"wal_enabled" yaml:"wal_enabled"`
			Encrypted        bool   `json:"encrypted" yaml:"encrypted"`
			Saving           bool   `json:"saving" yaml:"saving"`
			LastSave         int64  `json:"last_save" yaml:"last_save"`
			LastSaveOK       bool   `json:"last_save_ok" yaml:"last_save_ok"`
			ChangesSinceSave int64  `json:"changes_since_save" yaml:"changes_since_save"`
		} `json:"persistence,omitempty" yaml:"persistence,omitempty"`
	}

	snapshotView struct {
		ID        string `json:"id" yaml:"id"`
		Backend   string `json:"backend" yaml:"backend"`
		KeyCount  int64  `json:"key_count" yaml:"key_count"`
		CreatedAt int64  `json:"created_at" yaml:"created_at"`
		Size      int64  `json:"size" yaml:"size"`
		Encrypted bool   `json:"encrypted" yaml:"encrypted"`
	}

	snapshotListView struct {
		Snapshots []snapshotView `json:"snapshots" yaml:"snapshots"`
		Total     int            `json:"total" yaml:"total"`
	}
)

func adminStatus(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	client, err := s.adminClient()
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	var st statusView
	if err := client.Get(ctx, "/admin/v1/status", &st); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if s.format != output.FormatRaw {
		return s.print(st)
	}

	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("version", st.Build.Version)
	t.AddRow("commit", st.Build.Commit)
	t.AddRow("uptime", st.Uptime)
	t.AddRow("keys", strconv.Itoa(st.Keyspace.Keys))
	t.AddRow("volatile_keys", strconv.Itoa(st.Keyspace.VolatileKeys))
	t.AddRow("expired_keys", strconv.FormatUint(st.Keyspace.ExpiredKeys, 10))
	if cl := st.Clients; cl != nil {
		t.AddRow("connected_clients", strconv.Itoa(cl.ConnectedClients))
		t.AddRow("total_connections", strconv.FormatInt(cl.TotalConnections, 10))
		t.AddRow("total_commands", strconv.FormatInt(cl.TotalCommands, 10))
	}
	if p := st.Persistence; p != nil {
		t.AddRow("persistence", p.Backend)
		t.AddRow("wal", strconv.FormatBool(p.WALEnabled))
		t.AddRow("encrypted", strconv.FormatBool(p.Encrypted))
		t.AddRow("last_save", formatMillis(p.LastSave))
		t.AddRow("changes_since_save", strconv.FormatInt(p.ChangesSinceSave, 10))
	} else {
		t.AddRow("persistence", "disabled")
	}
	return s.print(t)
}

func adminHealth(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	client, err := s.adminClient()
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	result := map[string]string{"health": "healthy", "ready": "ready"}
	var healthErr error
	if err := client.Get(ctx, "/health", nil); err != nil {
		result["health"] = "unhealthy: " + err.Error()
		healthErr = err
	}
	if err := client.Get(ctx, "/ready", nil); err != nil {
		result["ready"] = "not ready: " + err.Error()
		if healthErr == nil {
			healthErr = err
		}
	}

	if s.format == output.FormatRaw {
		t := output.NewTable("CHECK", "STATUS")
		t.AddRow("health", result["health"])
		t.AddRow("ready", result["ready"])
		if err := s.print(t); err != nil {
			return err
		}
	} else if err := s.print(result); err != nil {
		return err
	}
	if healthErr != nil {
		return fmt.Errorf("server unhealthy")
	}
	return nil
}

func adminConfig(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	client, err := s.adminClient()
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	var cfg map[string]any
	if err := client.Get(ctx, "/admin/v1/config", &cfg); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return s.print(cfg)
}

func snapshotList(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	client, err := s.adminClient()
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	var list snapshotListView
	if err := client.Get(ctx, "/admin/v1/snapshots", &list); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if s.format != output.FormatRaw {
		return s.print(list)
	}
	if len(list.Snapshots) == 0 {
		fmt.Fprintln(s.out, "no snapshots")
		return nil
	}
	t := output.NewTable("ID", "BACKEND", "KEYS", "SIZE", "CREATED", "ENCRYPTED")
	for _, snap := range list.Snapshots {
		t.AddRow(snap.ID, snap.Backend,
			strconv.FormatInt(snap.KeyCount, 10),
			formatBytes(snap.Size),
			formatMillis(snap.CreatedAt),
			strconv.FormatBool(snap.Encrypted))
	}
	return s.print(t)
}

func snapshotCreate(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	client, err := s.adminClient()
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c.Context)
	defer cancel()

	spin := output.NewSpinner(s.errOut, "creating snapshot")
	spin.Start()
	var snap snapshotView
	if err := client.Post(ctx, "/admin/v1/snapshots", nil, &snap); err != nil {
		spin.Fail("snapshot failed")
		return err
	}
	spin.Success("snapshot " + snap.ID + " created")

	if s.format != output.FormatRaw {
		return s.print(snap)
	}
	t := output.NewTable("ID", "KEYS", "SIZE")
	t.AddRow(snap.ID, strconv.FormatInt(snap.KeyCount, 10), formatBytes(snap.Size))
	return s.print(t)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "never"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
