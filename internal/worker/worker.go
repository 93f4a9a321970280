// Package worker runs a whole job on a worker node: it stages the input
// sandbox, runs the workflow steps one after the other and uploads the
// user output data.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/me/ilcdirac/internal/config"
	"github.com/me/ilcdirac/internal/detector"
	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/executor"
	"github.com/me/ilcdirac/internal/metrics"
	"github.com/me/ilcdirac/internal/report"
	"github.com/me/ilcdirac/internal/software"
	"github.com/me/ilcdirac/internal/storage"
	"github.com/me/ilcdirac/internal/store"
	"github.com/me/ilcdirac/internal/workflow"
	"github.com/me/ilcdirac/pkg/model"
)

// Job status values reported around the steps.
const (
	StatusStaging  = "Staging Input Sandbox"
	StatusFinished = "Job Finished Successfully"
)

// Runner executes workflows.
type Runner struct {
	engine   *execution.Engine
	registry *executor.Registry
	sandbox  *Sandbox
	final    *executor.UserJobFinalization
	report   report.JobReport
	platform string
	workDir  string
	logger   *slog.Logger
	closers  []io.Closer
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Engine   *execution.Engine
	Registry *executor.Registry
	Storage  *storage.Registry
	Report   report.JobReport
	Platform string // used when the workflow sets none
	WorkDir  string // parent of the per-job directories
	Logger   *slog.Logger
}

// NewRunner assembles a Runner from deps.
func NewRunner(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.WorkDir == "" {
		deps.WorkDir = filepath.Join(os.TempDir(), "ilcdirac-worker")
	}
	return &Runner{
		engine:   deps.Engine,
		registry: deps.Registry,
		sandbox:  NewSandbox(deps.Storage),
		final:    executor.NewUserJobFinalization(deps.Storage, logger),
		report:   deps.Report,
		platform: deps.Platform,
		workDir:  deps.WorkDir,
		logger:   logger.With("component", "worker"),
	}
}

// Options are the process level settings of New.
type Options struct {
	TLS     TLSConfig
	Metrics *metrics.Metrics
	// Echo receives the application lines matching the event patterns.
	Echo io.Writer
}

// New builds a Runner and its services from the worker configuration.
func New(ctx context.Context, cfg config.WorkerConfig, opts Options, logger *slog.Logger) (*Runner, error) {
	tlsCfg, err := opts.TLS.ClientConfig()
	if err != nil {
		return nil, err
	}
	ses, err := storage.Open(ctx, cfg.StorageElements, logger)
	if err != nil {
		return nil, fmt.Errorf("storage elements: %w", err)
	}

	var (
		rep     report.JobReport
		closers []io.Closer
	)
	switch {
	case cfg.Report.URL != "":
		c := report.NewClient(cfg.Report.URL, tlsCfg)
		c.SetSource("JobWrapper")
		c.SetKey(cfg.Report.Key)
		rep = c
	case cfg.Report.DBPath != "":
		st, err := store.NewSQLiteStore(cfg.Report.DBPath, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		rep = st
		closers = append(closers, st)
	default:
		rep = report.NewMemory()
	}

	engineCfg := execution.Config{
		Logger:                   logger,
		Echo:                     opts.Echo,
		EventPatterns:            cfg.EventPatterns,
		ExcludeAllButEventString: cfg.ExcludeAllButEventString,
	}
	if opts.Metrics != nil {
		engineCfg.Observer = opts.Metrics
	}
	registry := executor.NewRegistry(executor.Deps{
		Software:  software.NewArea(cfg.Software),
		Detectors: detector.NewFetcher(detector.Config{Mirrors: cfg.DetectorMirrors}, tlsCfg, logger),
		Storage:   ses,
		Logger:    logger,
	})

	r := NewRunner(Deps{
		Engine:   execution.NewEngine(engineCfg),
		Registry: registry,
		Storage:  ses,
		Report:   rep,
		Platform: cfg.Platform,
		WorkDir:  cfg.WorkDir,
		Logger:   logger,
	})
	r.closers = closers
	return r, nil
}

// Close releases the report backend.
func (r *Runner) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Job identifies one execution of a workflow.
type Job struct {
	ID             string
	Owner          string
	Group          string
	ProxyPath      string
	NumberOfEvents int // overrides every step's event count when > 0
}

// Result is the outcome of a job.
type Result struct {
	JobID    string
	WorkDir  string
	Steps    []*execution.StepResult
	Uploaded []*model.FileMetadata
	Elapsed  time.Duration
	Err      error
}

// OK reports whether every step succeeded and the output was uploaded.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Run executes wf for job. Steps run in workflow order and the first
// failed step ends the job. The returned error is only set when the job
// could not start; step failures are reported in Result.Err.
func (r *Runner) Run(ctx context.Context, wf *model.Workflow, job Job) (*Result, error) {
	started := time.Now()
	dag, err := workflow.BuildDAG(wf)
	if err != nil {
		return nil, err
	}

	dirName := job.ID
	if dirName == "" {
		dirName = fmt.Sprintf("%s-%d", wf.Name, started.Unix())
	}
	workDir, err := filepath.Abs(filepath.Join(r.workDir, dirName))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir %s: %w", workDir, err)
	}

	logger := r.logger.With("job_id", job.ID, "workflow", wf.Name)
	jc := execution.NewJobContext(wf, job.ID, workDir, execution.NewReporter(job.ID, r.report, logger))
	if jc.Platform == "" {
		jc.Platform = r.platform
	}
	jc.NumberOfEvents = job.NumberOfEvents
	jc.Credentials = execution.Credentials{ProxyPath: job.ProxyPath, Owner: job.Owner, Group: job.Group}

	res := &Result{JobID: job.ID, WorkDir: workDir}
	defer func() { res.Elapsed = time.Since(started) }()

	r.status(ctx, jc, StatusStaging)
	for _, ref := range append(append([]string(nil), wf.InputSandbox...), prefixed(wf.InputData)...) {
		if err := r.sandbox.StageIn(ctx, ref, workDir); err != nil {
			res.Err = model.NewJobError(model.ErrMissingInputFile, "StageIn", err.Error(), map[string]any{"file": ref})
			r.status(ctx, jc, "Failed To Stage Input Sandbox")
			return res, nil
		}
	}

	for _, name := range dag.Order {
		step := wf.Step(name)
		module, err := r.registry.Get(step.Kind)
		if err != nil {
			res.Err = err
			return res, nil
		}
		sr := r.engine.RunStep(ctx, jc, wf, step, module)
		res.Steps = append(res.Steps, sr)
		if !sr.OK() {
			res.Err = fmt.Errorf("step %s: %w", step.Name, sr.Err)
			logger.Error("job stopped", "step", step.Name, "error", sr.Err)
			return res, nil
		}
	}

	uploaded, err := r.final.Finalize(ctx, jc)
	res.Uploaded = uploaded
	if err != nil {
		res.Err = fmt.Errorf("finalization: %w", err)
		return res, nil
	}
	r.status(ctx, jc, StatusFinished)
	logger.Info("job done", "steps", len(res.Steps), "uploaded", len(uploaded))
	return res, nil
}

func (r *Runner) status(ctx context.Context, jc *execution.JobContext, status string) {
	if _, err := jc.Reporter.SetApplicationStatus(ctx, status); err != nil {
		r.logger.Warn("report status", "status", status, "error", err)
	}
}

// prefixed returns the input data as catalog references.
func prefixed(lfns []string) []string {
	out := make([]string, len(lfns))
	for i, f := range lfns {
		if IsLFN(f) {
			out[i] = f
		} else {
			out[i] = "LFN:" + f
		}
	}
	return out
}
