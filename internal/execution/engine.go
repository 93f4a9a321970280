// Package execution runs one workflow step on a worker: it resolves the
// step's inputs, lets the application module validate and prepare its
// environment, runs the generated script, checks the application log and
// reports a terminal status.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/me/ilcdirac/internal/stepinput"
	"github.com/me/ilcdirac/pkg/model"
)

// Module is the worker side of one application.
type Module interface {
	Kind() model.StepKind
	// AppName is the name used in status messages, e.g. "Mokka".
	AppName() string
	// Validate checks the step context once inputs are resolved.
	Validate(ctx context.Context, sc *StepContext) error
	// Setup prepares the work directory and returns the script to run.
	Setup(ctx context.Context, sc *StepContext) (*Script, error)
	// Outputs returns the values recorded for later steps once the step
	// succeeded.
	Outputs(sc *StepContext) map[string]any
}

// NativeModule runs in-process instead of through a generated script. It
// needs no platform and produces no application log.
type NativeModule interface {
	Module
	Execute(ctx context.Context, sc *StepContext) error
}

// Observer is notified when a step reaches a terminal state.
type Observer interface {
	StepFinished(kind model.StepKind, state model.StepState, exitCode int, elapsed time.Duration)
}

// Engine runs workflow steps.
type Engine struct {
	logger        *slog.Logger
	runtime       Runtime
	observer      Observer
	echo          io.Writer
	eventPatterns map[string][]string
	onlyMatching  bool
}

// Config holds engine configuration.
type Config struct {
	Logger   *slog.Logger
	Runtime  Runtime
	Observer Observer
	// Echo receives the application output lines matching the event
	// patterns. Nil discards them.
	Echo io.Writer
	// EventPatterns lists, per application name, the patterns of the
	// output lines worth echoing.
	EventPatterns map[string][]string
	// ExcludeAllButEventString restricts the application log to the
	// matching lines.
	ExcludeAllButEventString bool
}

// NewEngine creates a new execution engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runtime := cfg.Runtime
	if runtime == nil {
		runtime = &LocalRuntime{}
	}

	return &Engine{
		logger:        logger,
		runtime:       runtime,
		observer:      cfg.Observer,
		echo:          cfg.Echo,
		eventPatterns: cfg.EventPatterns,
		onlyMatching:  cfg.ExcludeAllButEventString,
	}
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step        string
	State       model.StepState
	Transitions []model.StepState
	ExitCode    int
	// Statuses are the application statuses reported, in order.
	Statuses []string
	Outputs  map[string]any
	StdErr   string
	Err      error
}

// OK reports whether the step finished successfully.
func (r *StepResult) OK() bool {
	return r.State == model.StepStateDone
}

type stepRun struct {
	engine *Engine
	result *StepResult
	job    *JobContext
	sc     *StepContext
	module Module
	logger *slog.Logger
}

func (r *stepRun) advance(next model.StepState) {
	cur := r.result.State
	if !cur.CanTransitionTo(next) {
		// Only reachable through a bug in RunStep itself.
		panic(&model.InvalidTransitionError{Step: r.result.Step, From: cur, To: next})
	}
	r.logger.Debug("step state", "from", cur, "to", next)
	r.result.State = next
	r.result.Transitions = append(r.result.Transitions, next)
}

func (r *stepRun) status(ctx context.Context, status string) {
	r.result.Statuses = append(r.result.Statuses, status)
	if _, err := r.job.Reporter.SetApplicationStatus(ctx, status); err != nil {
		r.logger.Warn("report application status", "status", status, "error", err)
	}
}

// fail moves the step to Failed, emitting a terminal status first when
// none was reported for this failure.
func (r *stepRun) fail(ctx context.Context, phase string, err error, status string) *StepResult {
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		err = &ExecutionError{Phase: phase, Err: err, ExitCode: r.result.ExitCode}
	}
	r.result.Err = err
	if r.result.State != model.StepStateReportStatus {
		r.advance(model.StepStateReportStatus)
	}
	if status == "" {
		status = fmt.Sprintf("%s failed during %s", r.module.AppName(), phase)
	}
	r.status(ctx, status)
	r.advance(model.StepStateFailed)
	r.logger.Error("step failed", "phase", phase, "error", err)
	return r.result
}

// RunStep executes step of wf with module. The returned result always
// carries a terminal state; Err is set when it is Failed.
func (e *Engine) RunStep(ctx context.Context, job *JobContext, wf *model.Workflow, step *model.Step, module Module) *StepResult {
	started := time.Now()
	r := &stepRun{
		engine: e,
		result: &StepResult{Step: step.Name, State: model.StepStateStart},
		job:    job,
		module: module,
		logger: e.logger.With("step", step.Name, "kind", step.Kind, "job_id", job.JobID),
	}
	res := e.runStep(ctx, r, wf, step)
	if e.observer != nil {
		e.observer.StepFinished(step.Kind, res.State, res.ExitCode, time.Since(started))
	}
	return res
}

func (e *Engine) runStep(ctx context.Context, r *stepRun, wf *model.Workflow, step *model.Step) *StepResult {
	job, module := r.job, r.module
	native, isNative := module.(NativeModule)

	// ResolveInputs.
	r.advance(model.StepStateResolveInputs)
	params, err := stepinput.ResolveStep(wf, step, job.Ledger)
	if err != nil {
		return r.fail(ctx, PhaseResolveInputs, err, "")
	}
	sc := NewStepContext(job, step, params, e.logger)
	sc.Version = sc.String("applicationVersion")
	sc.LogFile = sc.String("applicationLog")
	sc.Debug = sc.Bool("debug")
	sc.NumberOfEvents = job.NumberOfEvents
	r.sc = sc

	// Validate.
	r.advance(model.StepStateValidate)
	if !isNative && job.Platform == "" {
		err := model.NewJobError(model.ErrNoPlatformSelected, "Validate",
			"no platform selected", map[string]any{"step": step.Name})
		return r.fail(ctx, PhaseValidate, err, "")
	}
	if err := module.Validate(ctx, sc); err != nil {
		return r.fail(ctx, PhaseValidate, err, "")
	}

	// Setup.
	r.advance(model.StepStateSetup)
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		return r.fail(ctx, PhaseSetup, err, "")
	}
	var script *Script
	if !isNative {
		script, err = module.Setup(ctx, sc)
		if err != nil {
			return r.fail(ctx, PhaseSetup, err, "")
		}
		if script.Name == "" {
			script.Name = fmt.Sprintf("%s_%s_Run_%d.sh", module.AppName(), sc.Version, step.Index)
		}
	} else if _, err := module.Setup(ctx, sc); err != nil {
		return r.fail(ctx, PhaseSetup, err, "")
	}

	// Run.
	r.advance(model.StepStateRun)
	r.status(ctx, fmt.Sprintf("%s %s step %d", module.AppName(), sc.Version, step.Index))
	if isNative {
		if err := native.Execute(ctx, sc); err != nil {
			return r.fail(ctx, PhaseRun, err, "")
		}
		r.advance(model.StepStateCollectOutputs)
		return e.finish(ctx, r, 0)
	}

	exitCode, err := e.runScript(ctx, r, script)
	if err != nil {
		return r.fail(ctx, PhaseRun, err, "")
	}
	r.result.ExitCode = exitCode

	// CollectOutputs. A missing log means the application never really
	// started; it fails regardless of the exit status.
	r.advance(model.StepStateCollectOutputs)
	if sc.LogFile != "" {
		if _, err := os.Stat(sc.Path(sc.LogFile)); err != nil {
			msg := fmt.Sprintf("%s did not produce the expected log %s", module.AppName(), sc.LogFile)
			return r.fail(ctx, PhaseCollectOutputs,
				&ExecutionError{Phase: PhaseCollectOutputs, Err: fmt.Errorf("%w: %s", ErrLogMissing, sc.LogFile), ExitCode: exitCode},
				msg)
		}
	}
	return e.finish(ctx, r, exitCode)
}

func (e *Engine) runScript(ctx context.Context, r *stepRun, script *Script) (int, error) {
	sc := r.sc
	path, err := script.Write(sc.Job.WorkDir)
	if err != nil {
		return 0, err
	}
	logPath := ""
	if sc.LogFile != "" {
		logPath = sc.Path(sc.LogFile)
		if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("remove old log: %w", err)
		}
	}
	redirect, err := NewLogRedirector(logPath, e.eventPatterns[r.module.AppName()], e.onlyMatching, e.echo)
	if err != nil {
		return 0, err
	}

	r.logger.Info("running application", "script", path, "log", logPath)
	res, err := e.runtime.Run(ctx, RunSpec{Script: path, WorkDir: sc.Job.WorkDir}, redirect.Line)
	if err != nil {
		return 0, err
	}
	r.result.StdErr = redirect.StdErr()
	if werr := redirect.Err(); werr != nil {
		r.logger.Warn("application log write", "error", werr)
	}
	if r.result.StdErr != "" {
		r.logger.Debug("application stderr", "stderr", r.result.StdErr)
	}
	return res.ExitCode, nil
}

// finish reports the terminal status from the exit code and records the
// step outputs when it succeeded.
func (e *Engine) finish(ctx context.Context, r *stepRun, exitCode int) *StepResult {
	sc, module := r.sc, r.module
	r.advance(model.StepStateReportStatus)
	statuses, err := FinalStatusReport(module.AppName(), sc.Version, exitCode, r.job.IgnoreAppErrors)
	for _, s := range statuses {
		r.status(ctx, s)
	}
	if err != nil {
		r.result.Err = &ExecutionError{Phase: PhaseReportStatus, Err: fmt.Errorf("%w: %w", ErrNonZeroExit, err), ExitCode: exitCode}
		r.advance(model.StepStateFailed)
		r.logger.Error("application failed", "exit_code", exitCode)
		return r.result
	}

	outputs := module.Outputs(sc)
	r.job.Ledger.Record(sc.Step, outputs)
	if out, ok := outputs["outputFile"].(string); ok {
		r.job.AddOutputFile(out)
	}
	r.result.Outputs = outputs
	r.advance(model.StepStateDone)
	r.logger.Info("step done", "exit_code", exitCode)
	return r.result
}

// FinalStatusReport maps an application exit status to the statuses to
// report. A non-zero status is an error unless ignoreErrors is set, in
// which case the application is also reported successful.
func FinalStatusReport(app, version string, exitCode int, ignoreErrors bool) ([]string, error) {
	success := fmt.Sprintf("%s %s Successful", app, version)
	if exitCode == 0 {
		return []string{success}, nil
	}
	failed := fmt.Sprintf("%s exited With Status %d", app, exitCode)
	if ignoreErrors {
		return []string{failed, success}, nil
	}
	return []string{failed}, model.NewJobError(model.ErrApplicationFailed, "FinalStatusReport",
		failed, map[string]any{"application": app, "version": version, "exitCode": exitCode})
}
