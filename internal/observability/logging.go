package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value
// (case-insensitive; "warning" is accepted for warn). Unknown values, and
// the trace and disabled levels, fall back to info.
func SetLogLevel(lvl string) {
	lvl = strings.ToLower(strings.TrimSpace(lvl))
	if lvl == "warning" {
		lvl = "warn"
	}
	parsed, err := zerolog.ParseLevel(lvl)
	if err != nil || parsed < zerolog.DebugLevel || parsed > zerolog.PanicLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// SetupLogging installs the global logger: JSON lines on stdout, or a
// console writer when pretty is set. Every line carries the service name.
func SetupLogging(lvl string, pretty bool, service string) zerolog.Logger {
	return setupLogging(os.Stdout, lvl, pretty, service)
}

func setupLogging(w io.Writer, lvl string, pretty bool, service string) zerolog.Logger {
	SetLogLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	return log.Logger
}
