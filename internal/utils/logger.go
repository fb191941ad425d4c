package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger sends console-formatted logs to stderr. Debug lowers the level
// so per-chunk retries and mirror probes are shown.
func InitLogger(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	SetLogOutput(os.Stderr)
}

// SetLogOutput redirects the global logger, e.g. to a file while the status
// display owns the terminal.
func SetLogOutput(w io.Writer) {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
		NoColor:    w != os.Stderr,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
