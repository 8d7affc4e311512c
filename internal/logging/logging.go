// Package logging builds the process zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"cisline/internal/config"
)

// New returns a logger writing to w (stderr when nil) at the configured
// level. Format "console" is human readable; anything else is JSON lines.
func New(cfg config.Log, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "cisline").Logger()
}
