package execution

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// LogRedirector is the line callback of an application run. It echoes
// lines matching the event patterns (all lines when there are none),
// appends lines to the application log, and keeps everything written to
// stderr for diagnostics.
type LogRedirector struct {
	LogPath      string
	Patterns     []*regexp.Regexp
	OnlyMatching bool // write only matching lines to the log
	Echo         io.Writer

	stdErr strings.Builder
	err    error
}

// NewLogRedirector compiles patterns and returns a redirector writing to logPath.
func NewLogRedirector(logPath string, patterns []string, onlyMatching bool, echo io.Writer) (*LogRedirector, error) {
	l := &LogRedirector{LogPath: logPath, OnlyMatching: onlyMatching, Echo: echo}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("event pattern %q: %w", p, err)
		}
		l.Patterns = append(l.Patterns, re)
	}
	return l, nil
}

func (l *LogRedirector) matches(line string) bool {
	if len(l.Patterns) == 0 {
		return true
	}
	for _, re := range l.Patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Line handles one output line.
func (l *LogRedirector) Line(s Stream, line string) {
	matched := l.matches(line)
	if matched && l.Echo != nil {
		fmt.Fprintln(l.Echo, line)
	}
	if !l.OnlyMatching || matched {
		l.appendLog(line)
	}
	if s == Stderr {
		l.stdErr.WriteString(line)
		l.stdErr.WriteString("\n")
	}
}

// appendLog opens, appends to and closes the log for every line so no
// handle is held while the application runs.
func (l *LogRedirector) appendLog(line string) {
	if l.LogPath == "" {
		return
	}
	f, err := os.OpenFile(l.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if l.err == nil {
			l.err = err
		}
		return
	}
	if _, err := fmt.Fprintln(f, line); err != nil && l.err == nil {
		l.err = err
	}
	if err := f.Close(); err != nil && l.err == nil {
		l.err = err
	}
}

// StdErr returns everything captured from stderr.
func (l *LogRedirector) StdErr() string {
	return l.stdErr.String()
}

// Err returns the first log write error.
func (l *LogRedirector) Err() error {
	return l.err
}
