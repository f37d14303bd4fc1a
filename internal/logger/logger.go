// Package logger builds the process logger from configuration.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the root logger.
type Options struct {
	Level      string // debug | info | warn | error
	JSON       bool   // JSON lines instead of the console writer
	File       string // optional rotated log file
	MaxSizeMB  int
	MaxBackups int

	// Out receives console or JSON output; defaults to os.Stderr.
	Out io.Writer
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a logger. The returned closer releases the log file, if any,
// and must be called on shutdown.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var primary io.Writer = out
	if !opts.JSON {
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	writers := []io.Writer{primary}
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			LocalTime:  true,
		}
		closer = rotating

		if opts.JSON {
			writers = append(writers, rotating)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: rotating, NoColor: true, TimeFormat: time.DateTime})
		}
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
