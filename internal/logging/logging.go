// Package logging builds the structured logger shared by the client packages.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// New returns a logger at the given level. format is "console" (human readable,
// the default) or "json". A nil writer means stderr so command output on stdout
// stays clean.
func New(level, format string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	var writer log.Writer
	switch strings.ToLower(format) {
	case "json":
		writer = log.IOWriter{Writer: w}
	default:
		writer = &log.ConsoleWriter{Writer: w, QuoteString: true, EndWithMessage: true}
	}
	return &log.Logger{Level: lvl, Writer: writer}
}

// Discard returns a logger that drops everything. Used as the default in
// constructors and in tests.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel, Writer: log.IOWriter{Writer: io.Discard}}
}
