package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tidekv/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, buildinfo.String(c.App.Name))
	}
	return &cli.App{
		Name:    "tidekv-server",
		Usage:   "in-memory key-value server speaking RESP",
		Version: buildinfo.Get().Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"TIDEKV_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level: debug, info, warn, error",
				EnvVars: []string{"TIDEKV_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "resp-addr",
				Usage:   "RESP listen address, e.g. 127.0.0.1:6379",
				EnvVars: []string{"TIDEKV_RESP_ADDR"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "persistence data directory",
				EnvVars: []string{"TIDEKV_DATA_DIR"},
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, c.String("config"), flagOverrides(c))
		},
	}
}

// flagOverrides maps explicitly set flags onto config keys. Flags win over
// the file and the environment.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"log-level": "log.level",
		"resp-addr": "server.resp.addr",
		"data-dir":  "persistence.data_dir",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}
