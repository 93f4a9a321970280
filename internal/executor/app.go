package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/software"
	"github.com/me/ilcdirac/pkg/model"
)

// app carries what every application module shares.
type app struct {
	kind       model.StepKind
	name       string // name in status messages
	pkg        string // software package, "" when none is installed
	eventParam string // parameter holding the event count, if any
	deps       *Deps
}

func newApp(kind model.StepKind, name, pkg, eventParam string, deps *Deps) app {
	return app{kind: kind, name: name, pkg: pkg, eventParam: eventParam, deps: deps}
}

func (a *app) Kind() model.StepKind { return a.kind }
func (a *app) AppName() string      { return a.name }

// Outputs records the step parameters for later steps, with the event
// count the application actually ran with.
func (a *app) Outputs(sc *execution.StepContext) map[string]any {
	out := make(map[string]any, len(sc.Params))
	for k, v := range sc.Params {
		out[k] = v
	}
	if a.eventParam != "" {
		out[a.eventParam] = sc.Events(a.eventParam)
	}
	return out
}

// release locates the installed release of the step's application.
func (a *app) release(sc *execution.StepContext) (*software.Release, error) {
	if a.deps.Software == nil {
		return nil, model.NewJobError(model.ErrMissingSoftware, "Setup",
			"no software area configured", map[string]any{"app": a.pkg})
	}
	return a.deps.Software.Locate(sc.Job.Platform, a.pkg, sc.Version)
}

// script returns a script with the release environment. The release
// library directories are cleaned of incompatible libc copies first.
func (a *app) script(sc *execution.StepContext, rel *software.Release, commands ...string) (*execution.Script, error) {
	s := &execution.Script{
		Name:     fmt.Sprintf("%s_%s_Run_%d.sh", a.name, sc.Version, sc.Index),
		Commands: commands,
		Env:      map[string]string{},
	}
	if rel == nil {
		return s, nil
	}
	for _, dir := range rel.LibDirs() {
		removed, err := software.RemoveLibc(dir)
		if err != nil {
			return nil, err
		}
		if len(removed) > 0 {
			sc.Logger.Info("removed libc from release", "dir", dir, "files", removed)
		}
	}
	s.PathDirs = rel.PathDirs()
	s.LibDirs = rel.LibDirs()
	// Libraries shipped in the job sandbox win over the release.
	if fi, err := os.Stat(sc.Path("lib")); err == nil && fi.IsDir() {
		s.LibDirs = append([]string{sc.Path("lib")}, s.LibDirs...)
	}
	return s, nil
}

// requireFile fails with MISSING_INPUT_FILE when name is not in the work
// directory.
func requireFile(sc *execution.StepContext, param, name string) error {
	if name == "" {
		return model.NewJobError(model.ErrMissingInputFile, "Validate",
			fmt.Sprintf("%s: no %s given", sc.Step, param), map[string]any{"param": param})
	}
	if _, err := os.Stat(sc.Path(execution.LocalName(name))); err != nil {
		return model.NewJobError(model.ErrMissingInputFile, "Validate",
			fmt.Sprintf("%s: %s %s not found", sc.Step, param, name),
			map[string]any{"param": param, "file": name})
	}
	return nil
}

// requireFiles checks every file of a list.
func requireFiles(sc *execution.StepContext, param string, names []string) error {
	if len(names) == 0 {
		return model.NewJobError(model.ErrMissingInputFile, "Validate",
			fmt.Sprintf("%s: no %s given", sc.Step, param), map[string]any{"param": param})
	}
	for _, n := range names {
		if err := requireFile(sc, param, n); err != nil {
			return err
		}
	}
	return nil
}

// copyInto copies src into the work directory as name unless it is
// already there.
func copyInto(sc *execution.StepContext, src, name string) error {
	dest := sc.Path(name)
	if abs, _ := filepath.Abs(src); abs == dest {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
