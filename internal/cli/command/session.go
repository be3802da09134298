package command

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tidekv/internal/cli/config"
	"github.com/yndnr/tidekv/internal/cli/connection"
	"github.com/yndnr/tidekv/internal/cli/output"
	"github.com/yndnr/tidekv/internal/infra/tlsroots"
)

// session is the resolved state of one invocation: the CLI file merged
// with environment and flags, and the selected connection profile.
type session struct {
	cfg     *config.CLIConfig
	cfgPath string
	conn    config.ConnectionConfig
	format  output.Format

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newSession(c *cli.Context) (*session, error) {
	path := c.String("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	fileCfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := make(map[string]string)
	for _, name := range []string{"server", "admin", "output"} {
		if c.IsSet(name) {
			flags[name] = c.String(name)
		}
	}
	if c.IsSet("timeout") {
		flags["timeout"] = c.Duration("timeout").String()
	}
	cfg, err := config.Merge(fileCfg, config.Environ(), flags)
	if err != nil {
		return nil, err
	}

	conn, err := cfg.Resolve(c.String("profile"))
	if err != nil {
		return nil, err
	}
	// Explicit flags win over the profile.
	if c.IsSet("server") {
		conn.Server = cfg.Server
	}
	if c.IsSet("admin") {
		conn.Admin = cfg.Admin
	}
	if c.IsSet("password") {
		conn.Password = c.String("password")
	}
	if c.Bool("tls") {
		conn.TLS.Enabled = true
	}
	if c.IsSet("cacert") {
		conn.TLS.CAFile = c.String("cacert")
	}
	if c.IsSet("cert") {
		conn.TLS.CertFile = c.String("cert")
	}
	if c.IsSet("key") {
		conn.TLS.KeyFile = c.String("key")
	}
	if c.Bool("insecure") {
		conn.TLS.Insecure = true
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		cfgPath: path,
		conn:    conn,
		format:  format,
		in:      c.App.Reader,
		out:     c.App.Writer,
		errOut:  c.App.ErrWriter,
	}
	if s.in == nil {
		s.in = os.Stdin
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.errOut == nil {
		s.errOut = os.Stderr
	}
	return s, nil
}

// tlsConfig builds the client TLS configuration, or nil when TLS is off.
func (s *session) tlsConfig() (*tls.Config, error) {
	t := s.conn.TLS
	if !t.Enabled {
		return nil, nil
	}
	pool := tlsroots.NewPool()
	if t.CAFile != "" {
		p, err := tlsroots.LoadPool(t.CAFile, true)
		if err != nil {
			return nil, err
		}
		pool = p
	}
	serverName := t.ServerName
	if serverName == "" {
		if host, _, err := net.SplitHostPort(s.conn.Server); err == nil {
			serverName = host
		}
	}
	cfg := pool.ClientConfig(serverName)
	cfg.InsecureSkipVerify = t.Insecure
	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (s *session) options() (connection.Options, error) {
	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return connection.Options{}, err
	}
	return connection.Options{
		Addr:      s.conn.Server,
		Password:  s.conn.Password,
		TLSConfig: tlsCfg,
		Timeout:   s.cfg.Timeout,
	}, nil
}

func (s *session) adminClient() (*connection.HTTPClient, error) {
	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return nil, err
	}
	return connection.NewHTTPClient(s.conn.Admin, s.conn.Password, tlsCfg), nil
}

// requestContext bounds one admin request by the configured timeout.
func (s *session) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func (s *session) print(data any) error {
	return output.NewFormatter(s.format).Format(s.out, data)
}
