// Package log configures the process-wide zerolog logger the toolkit
// logs through. Applications embedding the toolkit call Setup once at
// startup; libraries never call it.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Setup installs the global logger. level is a zerolog level name
// ("debug", "info", ...); unknown names fall back to info. pretty
// switches to the human-readable console writer.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	zlog.Logger = logger.Level(lvl).With().Timestamp().Logger()
}
