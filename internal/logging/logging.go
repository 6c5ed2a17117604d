// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the zerolog logger with the given level and output
// format. Logs go to stderr so streamed plugin output on stdout stays clean.
func InitLogger(level string, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = base
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
