package cliconfig

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/adris-vision/adris/pkg/log"
)

// Logger returns the stderr console logger used by all subcommands.
func Logger(level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(log.ParseLevel(level)).
		With().Timestamp().Logger()
}
