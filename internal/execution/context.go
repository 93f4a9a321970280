package execution

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/me/ilcdirac/internal/stepinput"
	"github.com/me/ilcdirac/pkg/model"
)

// Credentials is the handle on the job owner's grid identity.
type Credentials struct {
	ProxyPath string `yaml:"proxy_path"`
	Owner     string `yaml:"owner"`
	Group     string `yaml:"group"`
}

// JobContext is the job-wide state shared by the steps of one workflow run.
// Steps run one at a time, so it is not locked.
type JobContext struct {
	JobID           string
	Platform        string
	WorkDir         string
	InputData       []string
	NumberOfEvents  int // job-wide override when > 0
	IgnoreAppErrors bool
	Credentials     Credentials

	// UserOutputData, OutputSE and OutputPath describe the files uploaded
	// by user job finalization.
	UserOutputData []string
	OutputSE       []string
	OutputPath     string

	// Ledger holds the outputs recorded by finished steps.
	Ledger stepinput.Ledger
	// OutputFiles lists the files produced so far, in production order.
	OutputFiles []string

	Reporter *Reporter
}

// NewJobContext returns a JobContext for wf.
func NewJobContext(wf *model.Workflow, jobID, workDir string, reporter *Reporter) *JobContext {
	return &JobContext{
		JobID:           jobID,
		Platform:        wf.SystemConfig,
		WorkDir:         workDir,
		InputData:       append([]string(nil), wf.InputData...),
		IgnoreAppErrors: wf.IgnoreAppErrors,
		UserOutputData:  append([]string(nil), wf.OutputData...),
		OutputSE:        append([]string(nil), wf.OutputSE...),
		OutputPath:      wf.OutputPath,
		Ledger:          stepinput.Ledger{},
		Reporter:        reporter,
	}
}

// AddOutputFile appends name to the output ledger once.
func (j *JobContext) AddOutputFile(name string) {
	if name == "" {
		return
	}
	for _, f := range j.OutputFiles {
		if f == name {
			return
		}
	}
	j.OutputFiles = append(j.OutputFiles, name)
}

// StepContext holds the resolved parameters of one step. It is built fresh
// for every step and dropped once the step finishes.
type StepContext struct {
	Job    *JobContext
	Step   string
	Index  int
	Kind   model.StepKind
	Params map[string]any
	Logger *slog.Logger

	// Set while resolving inputs.
	Version        string
	LogFile        string
	NumberOfEvents int
	Debug          bool
}

// NewStepContext returns the context for step with resolved params.
func NewStepContext(job *JobContext, step *model.Step, params map[string]any, logger *slog.Logger) *StepContext {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StepContext{
		Job:    job,
		Step:   step.Name,
		Index:  step.Index,
		Kind:   step.Kind,
		Params: params,
		Logger: logger.With("step", step.Name, "job_id", job.JobID),
	}
}

// String returns a string parameter, or "".
func (sc *StepContext) String(name string) string {
	switch v := sc.Params[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an int parameter, or 0.
func (sc *StepContext) Int(name string) int {
	n, _ := model.AsInt(sc.Params[name])
	return n
}

// Bool returns a bool parameter.
func (sc *StepContext) Bool(name string) bool {
	b, _ := sc.Params[name].(bool)
	return b
}

// List returns a list parameter. A ;-joined string is split.
func (sc *StepContext) List(name string) []string {
	switch v := sc.Params[name].(type) {
	case []string:
		return v
	case string:
		var out []string
		for _, s := range strings.Split(v, ";") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Path resolves a file name against the job work directory.
func (sc *StepContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(sc.Job.WorkDir, name)
}

// InputFiles returns the basenames of files listed in param, falling back
// to the job input data with one of exts.
func (sc *StepContext) InputFiles(param string, exts ...string) []string {
	files := sc.List(param)
	if len(files) == 0 {
		for _, f := range sc.Job.InputData {
			for _, ext := range exts {
				if strings.HasSuffix(strings.ToLower(f), ext) {
					files = append(files, f)
					break
				}
			}
		}
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, LocalName(f))
	}
	return out
}

// LocalName is the name a sandbox or catalog file has in the work directory.
func LocalName(ref string) string {
	ref = strings.TrimPrefix(strings.TrimPrefix(ref, "LFN:"), "lfn:")
	return filepath.Base(ref)
}

// Events returns the event count of the step: the job-wide override when
// set, otherwise the integer parameter param.
func (sc *StepContext) Events(param string) int {
	if sc.Job.NumberOfEvents > 0 {
		return sc.Job.NumberOfEvents
	}
	return sc.Int(param)
}
