// Package common provides shared utilities for lectio
package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger to provide a consistent interface
type Logger struct {
	zerolog.Logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new console logger with the specified level
func NewLogger(level string) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return NewLoggerWithOutput(level, output)
}

// NewLoggerWithOutput creates a logger writing to a specific output
func NewLoggerWithOutput(level string, w io.Writer) *Logger {
	logger := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: logger}
}

// NewLoggerFromConfig builds a logger from the [logging] section.
// The terminal belongs to the reader UI while it runs, so "console" output is
// only honoured for the non-interactive commands (interactive=false).
func NewLoggerFromConfig(cfg LoggingConfig, interactive bool) (*Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	for _, out := range cfg.Outputs {
		switch out {
		case "console":
			if interactive {
				continue
			}
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		case "file":
			if cfg.FilePath == "" {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
			f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
			}
			writers = append(writers, f)
			closer = f
		default:
			return nil, nil, fmt.Errorf("unknown log output: %s (supported: console, file)", out)
		}
	}

	if len(writers) == 0 {
		return NewSilentLogger(), closer, nil
	}

	return NewLoggerWithOutput(cfg.Level, zerolog.MultiLevelWriter(writers...)), closer, nil
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger() *Logger {
	return NewLogger("info")
}

// NewSilentLogger creates a logger that discards all output
func NewSilentLogger() *Logger {
	logger := zerolog.New(io.Discard)
	return &Logger{Logger: logger}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
