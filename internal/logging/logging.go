// Package logging configures the process-wide zerolog logger used by every
// worker, query handler, and the HTTP server.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures zerolog with sane defaults for the given level.
// When pretty is true (suited to an interactive terminal), logs render via
// zerolog.ConsoleWriter; otherwise structured JSON goes to stdout.
func Init(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	lvl := zerolog.InfoLevel
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
}

// For returns a child logger tagged with the given component name. The
// binary in cmd/pulsecorr does not call it: it passes the global logger to
// workers and handlers directly.
func For(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
