package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/yndnr/tidekv/internal/protocol/resp"
)

// Options configures a RESP connection.
type Options struct {
	Addr     string
	Password string

	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config

	DialTimeout time.Duration
	// Timeout bounds each round trip when the context has no deadline.
	Timeout time.Duration
}

// Client is a single RESP connection. It is not safe for concurrent use;
// use a Pool for that.
type Client struct {
	conn    net.Conn
	r       *resp.Reader
	w       *resp.Writer
	timeout time.Duration
}

// Dial connects, performs the TLS handshake if configured, and
// authenticates when a password is set.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	if opts.TLSConfig != nil {
		tc := tls.Client(conn, opts.TLSConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake with %s: %w", opts.Addr, err)
		}
		conn = tc
	}

	c := &Client{
		conn:    conn,
		r:       resp.NewReader(conn),
		w:       resp.NewWriter(conn),
		timeout: opts.Timeout,
	}
	if opts.Password != "" {
		v, err := c.Do(ctx, "AUTH", opts.Password)
		if err == nil && v.IsError() {
			err = errors.New(v.Str)
		}
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
	}
	return c, nil
}

// Do sends one command and reads its reply. Error replies are returned
// as values; the error result is for transport failures only, after which
// the client must be discarded.
func (c *Client) Do(ctx context.Context, args ...string) (resp.Value, error) {
	if len(args) == 0 {
		return resp.Value{}, errors.New("empty command")
	}
	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return resp.Value{}, err
	}
	if err := c.w.WriteStrings(args...); err != nil {
		return resp.Value{}, err
	}
	if err := c.w.Flush(); err != nil {
		return resp.Value{}, err
	}
	return c.r.ReadValue()
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
