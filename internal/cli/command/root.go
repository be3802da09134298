package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tidekv/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:      "tidekv-cli",
		Usage:     "tidekv command-line client",
		UsageText: "tidekv-cli [global options] [COMMAND [ARG...]]\n   tidekv-cli [global options] admin|config SUBCOMMAND",
		Version:   buildinfo.Get().Version,
		Flags:     globalFlags(),
		Commands: []*cli.Command{
			AdminCommand(),
			ConfigCommand(),
		},
		Before:   setup,
		Action:   runRESP,
		Metadata: make(map[string]any),
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI configuration file",
			EnvVars: []string{"TIDEKV_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "connection profile from the configuration file",
			EnvVars: []string{"TIDEKV_CLI_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "RESP server address (default 127.0.0.1:6379)",
		},
		&cli.StringFlag{
			Name:  "admin",
			Usage: "admin API URL (default http://127.0.0.1:6380)",
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"a"},
			Usage:   "password for AUTH and the admin API",
			EnvVars: []string{"TIDEKV_CLI_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "connect with TLS",
		},
		&cli.StringFlag{
			Name:  "cacert",
			Usage: "CA certificate file used to verify the server",
		},
		&cli.StringFlag{
			Name:  "cert",
			Usage: "client certificate file",
		},
		&cli.StringFlag{
			Name:  "key",
			Usage: "client private key file",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "skip server certificate verification",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: raw, json, yaml",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-request timeout",
		},
		&cli.IntFlag{
			Name:    "repeat",
			Aliases: []string{"r"},
			Usage:   "execute the command N times",
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Usage:   "connections used by --repeat",
			Value:   1,
		},
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "wait between repeats (sequential mode only)",
		},
	}
}

// setup resolves the session once, before any action runs.
func setup(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	c.App.Metadata[sessionKey] = s
	return nil
}

const sessionKey = "session"

func sessionFrom(c *cli.Context) (*session, error) {
	s, ok := c.App.Metadata[sessionKey].(*session)
	if !ok {
		return nil, fmt.Errorf("session not initialized")
	}
	return s, nil
}
