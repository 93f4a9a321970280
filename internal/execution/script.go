package execution

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const scriptBanner = `#####################################################################
# Dynamically generated script to run a production or analysis job. #
#####################################################################`

// Script is a generated POSIX shell script wrapping one application run.
type Script struct {
	Name     string            // file name inside the work directory
	PathDirs []string          // prepended to PATH
	LibDirs  []string          // prepended to LD_LIBRARY_PATH
	Env      map[string]string // extra exported variables
	Commands []string
}

// Render returns the script text. The exit status of the last command is
// the exit status of the script.
func (s *Script) Render() string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString(scriptBanner)
	b.WriteString("\n")
	if len(s.PathDirs) > 0 {
		fmt.Fprintf(&b, "export PATH=%s:$PATH\n", strings.Join(s.PathDirs, ":"))
	}
	if len(s.LibDirs) > 0 {
		fmt.Fprintf(&b, "export LD_LIBRARY_PATH=%s:$LD_LIBRARY_PATH\n", strings.Join(s.LibDirs, ":"))
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s\n", k, Quote(s.Env[k]))
	}
	for _, c := range s.Commands {
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("exit $?\n")
	return b.String()
}

// Write renders the script into dir, replacing any previous copy, and
// returns its path.
func (s *Script) Write(dir string) (string, error) {
	if len(s.Commands) == 0 {
		return "", ErrEmptyScript
	}
	path := filepath.Join(dir, s.Name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove old script: %w", err)
	}
	if err := os.WriteFile(path, []byte(s.Render()), 0o755); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	return path, nil
}

// Command joins an executable and its arguments, quoting where needed.
func Command(exe string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, exe)
	for _, a := range args {
		parts = append(parts, Quote(a))
	}
	return strings.Join(parts, " ")
}

// Quote single-quotes s for the shell unless it is made of safe characters.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
