// Package logging builds the process-wide zerolog logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New creates a logger at the given level. Unknown levels fall back to
// info rather than failing startup.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
