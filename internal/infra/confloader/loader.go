package confloader

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "TIDEKV_"

// envSeparator separates nesting levels in environment variable names, so
// that single underscores can stay part of a key: TIDEKV_PERSISTENCE__DATA_DIR
// maps to persistence.data_dir.
const envSeparator = "__"

// ErrNilTarget is returned by Load when target is nil.
var ErrNilTarget = errors.New("confloader: nil target")

// Loader loads configuration from a YAML file, the environment and
// explicit overrides, in that order of increasing priority.
type Loader struct {
	mu        sync.Mutex
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
	loads     int
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides sets values that win over every other source, such as
// command-line flags. Keys use dotted paths ("server.resp.addr").
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configuration file, or "" if none was given.
func (l *Loader) FilePath() string {
	return l.filePath
}

// Load reads every source from scratch and unmarshals the result onto
// target. Fields not mentioned by any source keep the values target
// already holds, so callers pass a struct pre-filled with defaults. Load
// can be called again to pick up file changes; keys removed from the file
// fall back to those defaults.
func (l *Loader) Load(target any) error {
	if target == nil {
		return ErrNilTarget
	}

	k := koanf.New(".")
	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("confloader: load file %s: %w", l.filePath, err)
		}
	}
	if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("confloader: load env: %w", err)
	}
	if len(l.overrides) > 0 {
		if err := k.Load(mapProvider(l.overrides), nil); err != nil {
			return fmt.Errorf("confloader: load overrides: %w", err)
		}
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("confloader: unmarshal: %w", err)
	}

	l.mu.Lock()
	l.k = k
	l.loads++
	l.mu.Unlock()
	return nil
}

// envKey maps TIDEKV_SERVER__RESP__ADDR to server.resp.addr.
func (l *Loader) envKey(s string) string {
	s = strings.TrimPrefix(s, l.envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, envSeparator, ".")
}

// Loads returns how many times Load succeeded.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Get returns a raw value from the last successful Load.
func (l *Loader) Get(key string) any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Get(key)
}

// String returns a string value from the last successful Load.
func (l *Loader) String(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.String(key)
}

// Keys returns the keys set by any source in the last successful Load.
func (l *Loader) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Keys()
}
