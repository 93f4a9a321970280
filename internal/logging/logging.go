// Package logging builds the slog loggers of the ilcdirac binaries. Records
// go to stderr unless told otherwise; stdout belongs to command output and
// echoed application logs.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler of a logger.
type Options struct {
	Level  string    // debug, info, warn or error; anything else means info
	Format string    // "json" or text
	Output io.Writer // os.Stderr when nil
	Source bool      // annotate records with file:line
}

// New returns a logger configured by o.
func New(o Options) *slog.Logger {
	out := o.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: ParseLevel(o.Level), AddSource: o.Source}
	if strings.EqualFold(o.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, ho))
	}
	return slog.New(slog.NewTextHandler(out, ho))
}

// ParseLevel accepts the slog level names in any case, plus "warning".
func ParseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
