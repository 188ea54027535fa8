// Package logging builds the [log/slog] loggers used by replwatch.
//
// Diagnostics always go to stderr so they never interleave with the
// interpreter session on stdout. Each bridge unit logs through a child
// logger tagged with its component name.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/replwatch/internal/config"
)

// ComponentKey is the attribute naming the unit that emitted a record.
const ComponentKey = "component"

type ctxKey struct{}

// Setup builds a logger for cfg writing to stderr and installs it as the
// process-wide default.
func Setup(cfg *config.Config) *slog.Logger {
	return SetupWithWriter(cfg, os.Stderr)
}

// SetupWithWriter is Setup with an explicit destination.
func SetupWithWriter(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := New(cfg, w)
	slog.SetDefault(logger)

	return logger
}

// New builds a logger for cfg without touching the process default.
func New(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.EffectiveLogLevel())}

	if cfg.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// Component returns a child of logger tagged with name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String(ComponentKey, name))
}

// ParseLevel converts a configured level name to a slog.Level. Unknown
// names map to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from ctx, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}
