// Package log sets up the process-wide slog logger.
package log

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/streetpass/internal/config"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Init installs the configured logger as slog's default. Console output goes
// to stderr so decode and encode results on stdout can be piped.
func Init(cfg config.LogConfig) error {
	logger, err := New(os.Stderr, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// New builds a logger writing to console and, when enabled, a rotated file.
// Byte slice attributes (filters, frames) are rendered as hex.
func New(console io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out := console
	if file := cfg.Outputs.File; file.Enabled {
		rotated, err := rotatingFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create file output: %w", err)
		}
		out = io.MultiWriter(console, rotated)
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: hexBytes}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(out, opts)), nil
	}
	return nil, fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

func parseLevel(s string) (slog.Level, error) {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level: %q", s)
}

func hexBytes(_ []string, a slog.Attr) slog.Attr {
	if b, ok := a.Value.Any().([]byte); ok && a.Value.Kind() == slog.KindAny {
		return slog.String(a.Key, hex.EncodeToString(b))
	}
	return a
}

func rotatingFile(fc config.FileOutputConfig) (io.Writer, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}, nil
}
