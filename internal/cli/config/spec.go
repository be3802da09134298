package config

import "time"

// CLIConfig is the configuration for tidekv-cli.
type CLIConfig struct {
	// Defaults used when no profile is selected.
	Server  string        `yaml:"server"`
	Admin   string        `yaml:"admin"`
	Output  string        `yaml:"output"` // raw, json, yaml
	Timeout time.Duration `yaml:"timeout"`
	History string        `yaml:"history"`

	// Connections are named profiles, selected with --profile or
	// CurrentConnection.
	Connections       map[string]ConnectionConfig `yaml:"connections,omitempty"`
	CurrentConnection string                      `yaml:"current_connection,omitempty"`
}

// ConnectionConfig stores saved connection details.
type ConnectionConfig struct {
	Server   string    `yaml:"server"`
	Admin    string    `yaml:"admin,omitempty"`
	Password string    `yaml:"password,omitempty"`
	TLS      TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig configures a TLS connection to the server.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CAFile     string `yaml:"ca_file,omitempty"`
	CertFile   string `yaml:"cert_file,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	ServerName string `yaml:"server_name,omitempty"`
	Insecure   bool   `yaml:"insecure,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:      "127.0.0.1:6379",
		Admin:       "http://127.0.0.1:6380",
		Output:      "raw",
		Timeout:     30 * time.Second,
		Connections: make(map[string]ConnectionConfig),
	}
}

// Resolve returns the connection settings for profile, falling back to
// CurrentConnection and then to the top-level defaults.
func (c *CLIConfig) Resolve(profile string) (ConnectionConfig, error) {
	if profile == "" {
		profile = c.CurrentConnection
	}
	if profile == "" {
		return ConnectionConfig{Server: c.Server, Admin: c.Admin}, nil
	}
	conn, ok := c.Connections[profile]
	if !ok {
		return ConnectionConfig{}, &UnknownProfileError{Name: profile}
	}
	if conn.Server == "" {
		conn.Server = c.Server
	}
	if conn.Admin == "" {
		conn.Admin = c.Admin
	}
	return conn, nil
}

// UnknownProfileError reports a profile missing from the file.
type UnknownProfileError struct {
	Name string
}

func (e *UnknownProfileError) Error() string {
	return "unknown connection profile " + `"` + e.Name + `"`
}
