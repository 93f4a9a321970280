package model

// StepState represents the execution phase of a single step on a worker.
type StepState string

const (
	StepStateStart          StepState = "START"
	StepStateResolveInputs  StepState = "RESOLVE_INPUTS"
	StepStateValidate       StepState = "VALIDATE"
	StepStateSetup          StepState = "SETUP"
	StepStateRun            StepState = "RUN"
	StepStateCollectOutputs StepState = "COLLECT_OUTPUTS"
	StepStateReportStatus   StepState = "REPORT_STATUS"
	StepStateDone           StepState = "DONE"
	StepStateFailed         StepState = "FAILED"
)

// String returns the string representation of the step state.
func (s StepState) String() string {
	return string(s)
}

// IsTerminal returns true if the step is in a final state.
func (s StepState) IsTerminal() bool {
	return s == StepStateDone || s == StepStateFailed
}

// ValidStepTransitions defines the allowed state transitions for a step.
// Every non-terminal phase may fail; ReportStatus is reachable from any
// phase so a terminal status is always emitted.
var ValidStepTransitions = map[StepState][]StepState{
	StepStateStart:          {StepStateResolveInputs, StepStateFailed},
	StepStateResolveInputs:  {StepStateValidate, StepStateReportStatus, StepStateFailed},
	StepStateValidate:       {StepStateSetup, StepStateReportStatus, StepStateFailed},
	StepStateSetup:          {StepStateRun, StepStateReportStatus, StepStateFailed},
	StepStateRun:            {StepStateCollectOutputs, StepStateReportStatus, StepStateFailed},
	StepStateCollectOutputs: {StepStateReportStatus, StepStateFailed},
	StepStateReportStatus:   {StepStateDone, StepStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s StepState) CanTransitionTo(next StepState) bool {
	for _, allowed := range ValidStepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
