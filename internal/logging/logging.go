// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"screentime/internal/config"
	"screentime/internal/storage"
)

// ParseLevel maps a config level name to a zerolog level. Unknown names map to info.
func ParseLevel(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// Setup returns the root logger described by cfg. The returned closer
// releases the log file when one is configured; it is never nil.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := storage.EnsureParentDir(cfg.File); err != nil {
			return zerolog.Nop(), closer, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	return New(out, cfg.Format), closer, nil
}

// New builds a timestamped logger writing to out in the given format.
func New(out io.Writer, format string) zerolog.Logger {
	if format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: out != os.Stderr}).
			With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(out).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
