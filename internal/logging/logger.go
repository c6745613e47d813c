package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// New builds the process logger. Output is human-readable when pretty is set,
// JSON lines otherwise.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	logger := zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()

	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	}
	return logger
}

// ParseLevel maps a level name to a zerolog level. Unknown names fall back to
// warn so the CLI stays quiet by default.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.WarnLevel
	}
	return lvl
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

type Logger = zerolog.Logger

func Nop() Logger {
	return zerolog.Nop()
}
