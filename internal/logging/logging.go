// Package logging provides structured logging for the dashboard.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultConfig logs info to the console only.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Level:      "info",
		Console:    true,
		FilePath:   filepath.Join(home, ".config", "dealpop", "logs", "dealpop.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	}
}

// New creates a logger writing to the configured console and rotated file.
// The console writes to out; nil means stderr.
func New(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = out
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type loggerKey struct{}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the logger from context, or a no-op logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithComponent tags a logger with the component name.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
