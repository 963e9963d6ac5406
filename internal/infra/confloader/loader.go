package confloader

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix marks the environment variables read by LoadEnv.
const DefaultEnvPrefix = "MEMKV_"

// Loader layers the configuration sources over a target struct. It keeps
// no koanf state between calls, so every Load reads the file and the
// environment afresh.
type Loader struct {
	envPrefix string
	filePath  string
	overrides []map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile names the YAML file. An empty path means no file.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// NewLoader returns a loader reading the file, then the environment, then
// any overrides.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Override adds dotted-key values, typically command line flags, that take
// precedence over the file and the environment in every later Load.
func (l *Loader) Override(values map[string]any) {
	if len(values) > 0 {
		l.overrides = append(l.overrides, values)
	}
}

// FilePath returns the configuration file path, if any.
func (l *Loader) FilePath() string { return l.filePath }

// Load fills target. Fields that no source mentions keep the value they
// had, so callers pass a struct already holding the defaults.
func (l *Loader) Load(target any) error {
	k, err := l.merge()
	if err != nil {
		return err
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func (l *Loader) merge() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if l.filePath != "" {
		if _, err := os.Stat(l.filePath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", l.filePath, err)
		}
	}
	// MEMKV_STORAGE_RETENTION_COUNT sets storage.retention_count: only the
	// first underscore after the prefix separates section from key.
	prefix := l.envPrefix
	envProvider := env.Provider(prefix, ".", func(s string) string { return envKey(s, prefix) })
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	for _, m := range l.overrides {
		if err := k.Load(mapProvider(m), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}
	return k, nil
}

func envKey(s, prefix string) string {
	s = strings.ToLower(strings.TrimPrefix(s, prefix))
	return strings.Replace(s, "_", ".", 1)
}
