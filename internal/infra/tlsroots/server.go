package tlsroots

import (
	"crypto/tls"
	"errors"
	"log/slog"
)

// ServerOptions describes the certificate material of a TLS listener.
type ServerOptions struct {
	CertFile string
	KeyFile  string

	// ClientCAFile, when set, requires clients to present a certificate
	// signed by one of its CAs.
	ClientCAFile string

	Logger *slog.Logger
}

// NewServerConfig builds a server TLS config whose certificate is served
// from a Watcher, so replacing the files on disk rotates the certificate
// without a restart. The caller starts and stops the returned Watcher.
func NewServerConfig(opts ServerOptions) (*tls.Config, *Watcher, error) {
	if opts.CertFile == "" || opts.KeyFile == "" {
		return nil, nil, errors.New("tlsroots: certificate and key files are required")
	}
	var wopts []WatcherOption
	if opts.Logger != nil {
		wopts = append(wopts, WithLogger(opts.Logger))
	}
	w, err := NewWatcher(opts.CertFile, opts.KeyFile, wopts...)
	if err != nil {
		return nil, nil, err
	}

	cfg := &tls.Config{
		GetCertificate: w.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
	if opts.ClientCAFile != "" {
		pool, err := LoadPool(opts.ClientCAFile, false)
		if err != nil {
			return nil, nil, err
		}
		cfg.ClientCAs = pool.Pool()
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, w, nil
}
