package execution

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrEmptyScript = errors.New("script has no commands")
	ErrLogMissing  = errors.New("application log file missing")
	ErrNonZeroExit = errors.New("application exited with non-zero status")
)

// Execution phases.
const (
	PhaseResolveInputs  = "resolve_inputs"
	PhaseValidate       = "validate"
	PhaseSetup          = "setup"
	PhaseRun            = "run"
	PhaseCollectOutputs = "collect_outputs"
	PhaseReportStatus   = "report_status"
)

// ExecutionError wraps errors with execution phase context.
type ExecutionError struct {
	Phase    string
	Err      error
	ExitCode int
}

func (e *ExecutionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s: %v (exit code %d)", e.Phase, e.Err, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
