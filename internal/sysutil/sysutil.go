// Package sysutil holds process bootstrap helpers for cmd/server: zerolog
// setup and small environment-flag utilities.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions describes the process logger.
type LogOptions struct {
	Level   string    // zerolog level name; "warning" is accepted, unknown means info
	Pretty  bool      // console output for local development
	NoColor bool      // only with Pretty
	Out     io.Writer // defaults to stderr
	Service string
	Version string
}

// ParseLevel maps a configured level name to a zerolog level. Blank and
// unknown names mean info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetupLogger sets the zerolog globals (level, timestamp format) and
// returns the base logger carrying service and version. The caller
// installs it as log.Logger.
func SetupLogger(o LogOptions) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(o.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if o.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: o.NoColor}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if o.Service != "" {
		ctx = ctx.Str("service", o.Service)
	}
	if o.Version != "" {
		ctx = ctx.Str("version", o.Version)
	}
	return ctx.Logger()
}

// IsTruthy reports whether an environment flag is on: 1, true, yes, y or
// on, case-insensitively.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first non-blank value unchanged, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
