package respserver

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/yndnr/tidekv/internal/protocol/resp"
)

// Default connection settings.
const (
	DefaultAddress           = "127.0.0.1:6379"
	DefaultMaxClients        = 10000
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultReadBufferSize    = 16 * 1024
	DefaultOutboundHighWater = 8 * 1024 * 1024
	DefaultOutboundLowWater  = 1024 * 1024
)

// Config holds the RESP server configuration. It is fixed for the life of
// a Server; only the rate limit can be changed afterwards (SetRateLimit).
type Config struct {
	// Address is the plaintext listen address. Empty disables it.
	Address string

	// TLSAddress is the TLS listen address. It requires TLSConfig.
	TLSAddress string
	TLSConfig  *tls.Config

	// MaxClients caps concurrent connections. Zero means unlimited.
	MaxClients int

	// ReadTimeout bounds the time to receive the rest of a command once its
	// first byte arrived. IdleTimeout bounds the wait between commands.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RateLimit is commands per second per client IP. Zero disables it.
	RateLimit float64
	RateBurst int

	// RequirePass enables AUTH. Empty means no authentication.
	RequirePass string

	// OutboundHighWater pauses reading from a client whose pending replies
	// exceed it; reading resumes below OutboundLowWater.
	OutboundHighWater int
	OutboundLowWater  int

	ReadBufferSize int
	Limits         resp.Limits
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Address:           DefaultAddress,
		MaxClients:        DefaultMaxClients,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		OutboundHighWater: DefaultOutboundHighWater,
		OutboundLowWater:  DefaultOutboundLowWater,
		ReadBufferSize:    DefaultReadBufferSize,
		Limits:            resp.DefaultLimits(),
	}
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.OutboundHighWater <= 0 {
		c.OutboundHighWater = DefaultOutboundHighWater
	}
	if c.OutboundLowWater <= 0 || c.OutboundLowWater > c.OutboundHighWater {
		c.OutboundLowWater = c.OutboundHighWater / 2
	}
	if c.Limits == (resp.Limits{}) {
		c.Limits = resp.DefaultLimits()
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = max(int(c.RateLimit), 1)
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Address == "" && c.TLSAddress == "" {
		return errors.New("respserver: no listen address")
	}
	for _, addr := range []string{c.Address, c.TLSAddress} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("respserver: invalid address %q: %w", addr, err)
		}
	}
	if c.TLSAddress != "" && c.TLSConfig == nil {
		return errors.New("respserver: tls address requires a tls config")
	}
	if c.MaxClients < 0 {
		return errors.New("respserver: max_clients must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("respserver: rate_limit must not be negative")
	}
	if c.OutboundLowWater > c.OutboundHighWater && c.OutboundHighWater > 0 {
		return errors.New("respserver: outbound low water exceeds high water")
	}
	return nil
}
