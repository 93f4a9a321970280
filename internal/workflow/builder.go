// Package workflow builds job workflows: an append-only list of application
// steps whose inputs are literals or links to outputs of earlier steps.
package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/ilcdirac/internal/processlist"
	"github.com/me/ilcdirac/pkg/model"
)

// DefaultSystemConfig is the platform used when none is set.
const DefaultSystemConfig = "x86_64-slc5-gcc43-opt"

// DefaultOutputSE is the storage element used by SetOutputData when none is given.
const DefaultOutputSE = "CERN-SRM"

// Builder appends steps to a Workflow. Every Add call either appends exactly
// one step or leaves the workflow untouched.
type Builder struct {
	wf        *model.Workflow
	processes *processlist.ProcessList
	baseDir   string
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithProcessList sets the registry used to resolve Whizard processes.
func WithProcessList(pl *processlist.ProcessList) Option {
	return func(b *Builder) { b.processes = pl }
}

// WithBaseDir resolves relative local input paths against dir.
func WithBaseDir(dir string) Option {
	return func(b *Builder) { b.baseDir = dir }
}

// WithLogger sets the builder logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder returns a Builder for an empty workflow.
func NewBuilder(name string, opts ...Option) *Builder {
	b := &Builder{
		wf: &model.Workflow{
			Name:         name,
			Roles:        make(map[model.Role]string),
			SystemConfig: DefaultSystemConfig,
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With("component", "workflow-builder", "workflow", name)
	return b
}

// Workflow returns the workflow under construction.
func (b *Builder) Workflow() *model.Workflow {
	return b.wf
}

// StepCount returns the number of steps added so far.
func (b *Builder) StepCount() int {
	return b.wf.StepCount
}

// Validate checks the link graph and returns the execution order.
func (b *Builder) Validate() ([]string, error) {
	res, err := BuildDAG(b.wf)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// draft is a step being assembled by one Add call. Nothing in it reaches
// the workflow until commit.
type draft struct {
	op            string
	args          map[string]any
	step          *model.Step
	packages      []string
	inputSandbox  []string
	outputSandbox []string
}

func (b *Builder) newDraft(kind model.StepKind, op string, args map[string]any) *draft {
	n := b.wf.StepCount + 1
	return &draft{
		op:   op,
		args: args,
		step: &model.Step{
			Name:       fmt.Sprintf("%sStep%d", kind, n),
			Kind:       kind,
			Index:      n,
			Modules:    []string{kind.Module()},
			Parameters: Schema(kind),
		},
	}
}

func (d *draft) fail(code model.ErrorCode, format string, a ...any) error {
	return model.NewJobError(code, d.op, fmt.Sprintf(format, a...), d.args)
}

func (d *draft) bind(name string, v *model.Value) {
	p := d.step.Param(name)
	if p == nil {
		panic(fmt.Sprintf("workflow: %s has no parameter %q", d.step.Kind, name))
	}
	p.Value = v
}

func (d *draft) literal(name string, v any) {
	d.bind(name, model.Literal(v))
}

// application binds the parameters shared by every application step and
// records its package and sandbox files.
func (d *draft) application(app, version, logFile, outputFile string, debug, logInOutputData bool) {
	if logFile == "" {
		logFile = fmt.Sprintf("%s_%s_Step%d.log", d.step.Kind, version, d.step.Index)
	}
	d.literal("applicationVersion", version)
	d.literal("applicationLog", logFile)
	if d.step.Param("debug") != nil {
		d.literal("debug", debug)
	}
	if d.step.Param("outputFile") != nil {
		d.literal("outputFile", outputFile)
	}
	if app != "" && version != "" {
		d.packages = append(d.packages, app+"."+version)
	}
	if outputFile != "" {
		d.outputSandbox = append(d.outputSandbox, outputFile)
	}
	if !logInOutputData {
		d.outputSandbox = append(d.outputSandbox, logFile)
	}
}

func (b *Builder) commit(d *draft) *model.Step {
	wf := b.wf
	wf.Steps = append(wf.Steps, d.step)
	wf.StepCount = d.step.Index
	wf.Roles[d.step.Kind.Role()] = d.step.Name
	for _, p := range d.packages {
		wf.SoftwarePackages = appendPackage(wf.SoftwarePackages, p)
	}
	wf.InputSandbox = appendUnique(wf.InputSandbox, d.inputSandbox...)
	wf.OutputSandbox = appendUnique(wf.OutputSandbox, d.outputSandbox...)
	b.logger.Debug("step added", "step", d.step.Name, "kind", d.step.Kind, "links", len(d.step.Links()))
	return d.step
}

// appendPackage adds a tool.version token to a ;-joined manifest,
// keeping first-seen order and skipping duplicates.
func appendPackage(manifest, pkg string) string {
	if manifest == "" {
		return pkg
	}
	for _, p := range strings.Split(manifest, ";") {
		if p == pkg {
			return manifest
		}
	}
	return manifest + ";" + pkg
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, have := range list {
			if have == it {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, it)
		}
	}
	return list
}

// isLFN reports whether path is a logical file name reference.
func isLFN(path string) bool {
	return strings.HasPrefix(strings.ToLower(path), "lfn:")
}

// checkInputFile accepts an LFN reference or an existing local file and
// schedules it for the input sandbox.
func (b *Builder) checkInputFile(d *draft, param, path string) error {
	if isLFN(path) {
		d.inputSandbox = append(d.inputSandbox, path)
		return nil
	}
	local := path
	if !filepath.IsAbs(local) && b.baseDir != "" {
		local = filepath.Join(b.baseDir, local)
	}
	if _, err := os.Stat(local); err != nil {
		return d.fail(model.ErrMissingInputFile, "%s: file %s not found", param, path)
	}
	d.inputSandbox = append(d.inputSandbox, local)
	return nil
}

func requireVersion(d *draft, version string) error {
	if strings.TrimSpace(version) == "" {
		return d.fail(model.ErrInvalidArgument, "appVersion must be a non-empty string")
	}
	return nil
}

// argsOf flattens an options struct for error reporting.
func argsOf(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if json.Unmarshal(data, &out) != nil {
		return nil
	}
	return out
}

// SetOutputData declares the user output files uploaded at job end.
// path is relative to the user's area.
func (b *Builder) SetOutputData(lfns []string, ses []string, path string) error {
	args := map[string]any{"lfns": lfns, "OutputSE": ses, "OutputPath": path}
	if len(lfns) == 0 {
		return model.NewJobError(model.ErrInvalidArgument, "SetOutputData", "at least one output file is required", args)
	}
	path = strings.TrimLeft(path, "/")
	if strings.Contains(path, "ilc/user") {
		return model.NewJobError(model.ErrInvalidArgument, "SetOutputData",
			"OutputPath must be relative to the user directory", args)
	}
	if len(ses) == 0 {
		ses = []string{DefaultOutputSE}
	}
	files := make([]string, 0, len(lfns))
	for _, f := range lfns {
		files = append(files, strings.TrimPrefix(strings.TrimPrefix(f, "LFN:"), "lfn:"))
	}
	b.wf.OutputData = appendUnique(b.wf.OutputData, files...)
	b.wf.OutputSE = ses
	b.wf.OutputPath = path
	return nil
}

// SetBannedSites excludes sites from scheduling.
func (b *Builder) SetBannedSites(sites ...string) {
	b.wf.BannedSites = appendUnique(b.wf.BannedSites, sites...)
}

// SetInputData declares the job's catalog input files.
func (b *Builder) SetInputData(lfns ...string) {
	for _, f := range lfns {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "LFN:"), "lfn:")
		b.wf.InputData = appendUnique(b.wf.InputData, f)
	}
}

// SetIgnoreApplicationErrors makes tool exit failures non-fatal for the job.
func (b *Builder) SetIgnoreApplicationErrors(ignore bool) {
	b.wf.IgnoreAppErrors = ignore
}

// SetSystemConfig sets the platform tag.
func (b *Builder) SetSystemConfig(platform string) error {
	if strings.TrimSpace(platform) == "" {
		return model.NewJobError(model.ErrInvalidArgument, "SetSystemConfig", "platform must be a non-empty string",
			map[string]any{"platform": platform})
	}
	b.wf.SystemConfig = platform
	return nil
}
