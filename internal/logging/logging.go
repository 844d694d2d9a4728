package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options selects where diagnostics go.
type Options struct {
	// Level is debug, info, warn or error. Empty disables logging.
	Level string
	// File receives logs instead of stderr when set.
	File string
	// Stderr is the fallback writer, normally os.Stderr.
	Stderr io.Writer
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a flag value to a slog level.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug", "":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", value)
	}
}

// New builds a text logger for opts. The returned closer releases the log
// file, if any. Without a level or file, logging is discarded so the terminal
// UI stays clean.
func New(opts Options) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }
	if opts.Level == "" && opts.File == "" {
		return Discard(), noop, nil
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, noop, err
	}

	var writer io.Writer = opts.Stderr
	closer := noop
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, noop, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, noop, fmt.Errorf("open log file: %w", err)
		}
		writer = file
		closer = file.Close
	}
	if writer == nil {
		writer = os.Stderr
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}
