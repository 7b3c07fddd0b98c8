// Package logging builds the process-wide zerolog logger: console output for
// interactive use, an optional append-only file sink for service deployments.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Config struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// New builds the root logger. The returned closer releases the file sink and
// is a no-op when only console output is configured.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Level)

	var sinks []io.Writer
	if cfg.Console || !cfg.File.Enabled {
		sinks = append(sinks, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: consoleTimeFormat,
		})
	}

	var closer io.Closer = nopCloser{}
	if cfg.File.Enabled {
		if strings.TrimSpace(cfg.File.Path) == "" {
			return zerolog.Nop(), nil, fmt.Errorf("log file path is required when file logging is enabled")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		sinks = append(sinks, f)
		closer = f
	}

	log := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(level).
		With().Timestamp().Logger()
	return log, closer, nil
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func init() {
	zerolog.DurationFieldUnit = time.Millisecond
}
