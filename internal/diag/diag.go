// Package diag builds the zerolog logger used for the tool's own
// diagnostics (startup, rotation failures, access logs). It never touches
// the managed log files.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the diagnostics output shape.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// New returns a logger writing to w at the given level. An empty level means
// info; an unknown one is an error.
func New(w io.Writer, level string, format Format) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid diag level %q: %w", level, err)
		}
		lvl = parsed
	}

	switch format {
	case FormatConsole, "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("invalid diag format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Component tags l with a component field.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
