// ABOUTME: Logger setup shared by the loopback binaries
// ABOUTME: Level parsing, stderr and file output, file-only while a TUI owns the terminal
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Config selects where and how much to log
type Config struct {
	Level string
	// File is appended to when set
	File string
	// Quiet drops stderr output, for when a TUI owns the terminal
	Quiet bool
	// Trace forces debug level and reports callers
	Trace  bool
	Prefix string
	Stderr io.Writer
}

// New builds a logger and makes it the default. The returned closer releases the log file.
func New(cfg Config) (*log.Logger, func() error, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}
	if cfg.Trace {
		level = log.DebugLevel
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	var writers []io.Writer
	closer := func() error { return nil }

	if !cfg.Quiet {
		writers = append(writers, cfg.Stderr)
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f.Close
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		Prefix:          cfg.Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		ReportCaller:    cfg.Trace,
	})
	log.SetDefault(logger)
	return logger, closer, nil
}
