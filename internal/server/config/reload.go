package config

// Reloadable is the part of the configuration a running server applies
// when the configuration file changes. Everything else needs a restart.
type Reloadable struct {
	LogLevel      string
	Expiry        ExpirySection
	RateLimit     float64
	RateBurst     int
	HTTPRateLimit float64
	HTTPRateBurst int
}

// Reloadable extracts the hot-reloadable settings.
func (c *ServerConfig) Reloadable() Reloadable {
	return Reloadable{
		LogLevel:      c.Log.Level,
		Expiry:        c.Expiry,
		RateLimit:     c.Server.RESP.RateLimit,
		RateBurst:     c.Server.RESP.RateBurst,
		HTTPRateLimit: c.Server.HTTP.RateLimit,
		HTTPRateBurst: c.Server.HTTP.RateBurst,
	}
}

// RestartRequired lists the sections that differ between old and next in
// ways a reload cannot apply. The reloadable fields are ignored.
func RestartRequired(old, next *ServerConfig) []string {
	a, b := *old, *next
	// Blank out what a reload handles so only the rest is compared.
	for _, c := range []*ServerConfig{&a, &b} {
		c.Log.Level = ""
		c.Expiry = ExpirySection{}
		c.Server.RESP.RateLimit, c.Server.RESP.RateBurst = 0, 0
		c.Server.HTTP.RateLimit, c.Server.HTTP.RateBurst = 0, 0
	}

	var changed []string
	if a.Server.RESP != b.Server.RESP {
		changed = append(changed, "server.resp")
	}
	if a.Server.HTTP != b.Server.HTTP {
		changed = append(changed, "server.http")
	}
	if a.Keyspace != b.Keyspace {
		changed = append(changed, "keyspace")
	}
	if a.Persistence != b.Persistence {
		changed = append(changed, "persistence")
	}
	if a.Security != b.Security {
		changed = append(changed, "security")
	}
	if a.Log != b.Log {
		changed = append(changed, "log")
	}
	return changed
}
