package command

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tidekv/internal/cli/config"
	"github.com/yndnr/tidekv/internal/cli/output"
)

// ConfigCommand returns the config subcommand group. It manages the
// local CLI configuration file only; the server's configuration is
// shown by "admin config".
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective CLI configuration",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the CLI configuration file",
				Action: configValidate,
			},
			{
				Name:   "profiles",
				Usage:  "List connection profiles",
				Action: configProfiles,
			},
			{
				Name:      "use",
				Usage:     "Select the default connection profile",
				ArgsUsage: "PROFILE",
				Action:    configUse,
			},
		},
	}
}

const redacted = "******"

func configShow(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	shown := *s.cfg
	shown.Connections = make(map[string]config.ConnectionConfig, len(s.cfg.Connections))
	for name, conn := range s.cfg.Connections {
		if conn.Password != "" {
			conn.Password = redacted
		}
		shown.Connections[name] = conn
	}
	// Raw falls back to YAML for structs.
	return s.print(&shown)
}

func configValidate(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	// Loading already validated the file; reaching here means it passed.
	fmt.Fprintf(s.out, "configuration OK: %s\n", s.cfgPath)
	return nil
}

func configProfiles(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(s.cfg.Connections))
	for name := range s.cfg.Connections {
		names = append(names, name)
	}
	sort.Strings(names)

	if s.format != output.FormatRaw {
		type profile struct {
			Name    string `json:"name" yaml:"name"`
			Server  string `json:"server" yaml:"server"`
			Admin   string `json:"admin" yaml:"admin"`
			TLS     bool   `json:"tls" yaml:"tls"`
			Current bool   `json:"current" yaml:"current"`
		}
		list := make([]profile, 0, len(names))
		for _, name := range names {
			conn := s.cfg.Connections[name]
			list = append(list, profile{name, conn.Server, conn.Admin, conn.TLS.Enabled, name == s.cfg.CurrentConnection})
		}
		return s.print(list)
	}

	t := output.NewTable("CURRENT", "NAME", "SERVER", "ADMIN", "TLS")
	for _, name := range names {
		conn := s.cfg.Connections[name]
		current := ""
		if name == s.cfg.CurrentConnection {
			current = "*"
		}
		t.AddRow(current, name, conn.Server, conn.Admin, strconv.FormatBool(conn.TLS.Enabled))
	}
	return s.print(t)
}

func configUse(c *cli.Context) error {
	s, err := sessionFrom(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return fmt.Errorf("usage: config use PROFILE")
	}
	name := c.Args().First()

	// Edit the file as stored, not the env/flag-merged view.
	fileCfg, err := config.Load(s.cfgPath)
	if err != nil {
		return err
	}
	if _, ok := fileCfg.Connections[name]; !ok {
		return &config.UnknownProfileError{Name: name}
	}
	fileCfg.CurrentConnection = name
	if err := config.Save(fileCfg, s.cfgPath); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "switched to profile %q\n", name)
	return nil
}
