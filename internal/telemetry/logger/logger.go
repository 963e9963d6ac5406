package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler behind a logger.
type Config struct {
	Level  string // debug, info, warn or error
	Format string // json or text
	Output io.Writer
	// AddSource records file:line on every entry.
	AddSource bool
	// MaxKeyPreview bounds how much of a data key is logged. Zero selects
	// DefaultMaxKeyPreview.
	MaxKeyPreview int
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

// level is shared by every logger New returns, so a config reload can
// change verbosity without rebuilding the component loggers.
var level = new(slog.LevelVar)

// New builds a redacting slog logger. It also sets the process-wide level
// to cfg.Level.
func New(cfg Config) (*slog.Logger, error) {
	lv, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	maxKey := cfg.MaxKeyPreview
	if maxKey <= 0 {
		maxKey = DefaultMaxKeyPreview
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a, maxKey)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(out, opts)
	case "text", "console":
		h = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}
	level.Set(lv)
	return slog.New(h), nil
}

// ParseLevel maps a configured level name to a slog level. The empty
// string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

// SetLevel changes the level of every logger built by New. An unknown
// level leaves the current one in place.
func SetLevel(s string) error {
	lv, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(lv)
	return nil
}

// Level reports the current level name.
func Level() string {
	switch lv := level.Level(); {
	case lv <= slog.LevelDebug:
		return "debug"
	case lv <= slog.LevelInfo:
		return "info"
	case lv <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// Component tags l with the subsystem it logs for.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}
