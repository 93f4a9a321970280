package execution

import (
	"context"
)

// Stream identifies which output stream a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// LineFunc receives every output line of a running script, in arrival order,
// on a single goroutine.
type LineFunc func(s Stream, line string)

// Runtime abstracts how a generated script is executed.
type Runtime interface {
	// Run executes the script and returns once all output has been
	// delivered to onLine and the process has exited.
	Run(ctx context.Context, spec RunSpec, onLine LineFunc) (*RunResult, error)
}

// RunSpec describes what to execute.
type RunSpec struct {
	Script  string            // Path to the script
	WorkDir string            // Working directory
	Env     map[string]string // Extra environment variables
}

// RunResult holds the result of a script execution.
type RunResult struct {
	ExitCode int
}
