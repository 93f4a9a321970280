package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/me/ilcdirac/internal/execution"
)

// RootMacro runs a ROOT macro in batch mode.
type RootMacro struct {
	app
}

func (r *RootMacro) Validate(_ context.Context, sc *execution.StepContext) error {
	return requireFile(sc, "script", sc.String("script"))
}

func (r *RootMacro) Setup(_ context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := r.release(sc)
	if err != nil {
		return nil, err
	}
	macro := execution.LocalName(sc.String("script"))
	call := fmt.Sprintf("%s(%s)", macro, sc.String("arguments"))
	s, err := r.script(sc, rel, execution.Command("root", "-b", "-q", call))
	if err != nil {
		return nil, err
	}
	s.Env["ROOTSYS"] = rel.Dir
	return s, nil
}

// RootExecutable runs a user executable linked against ROOT.
type RootExecutable struct {
	app
}

func (r *RootExecutable) Validate(_ context.Context, sc *execution.StepContext) error {
	return requireFile(sc, "script", sc.String("script"))
}

func (r *RootExecutable) Setup(_ context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := r.release(sc)
	if err != nil {
		return nil, err
	}
	cmd, err := userCommand(sc)
	if err != nil {
		return nil, err
	}
	s, err := r.script(sc, rel, cmd)
	if err != nil {
		return nil, err
	}
	s.Env["ROOTSYS"] = rel.Dir
	return s, nil
}

// userCommand makes the step's script executable and returns the command
// running it with the user arguments appended verbatim.
func userCommand(sc *execution.StepContext) (string, error) {
	name := execution.LocalName(sc.String("script"))
	if err := os.Chmod(sc.Path(name), 0o755); err != nil {
		return "", err
	}
	cmd := execution.Quote("./" + name)
	if args := strings.TrimSpace(sc.String("arguments")); args != "" {
		cmd += " " + args
	}
	return cmd, nil
}

// ApplicationScript runs a user supplied script.
type ApplicationScript struct {
	app
}

func (a *ApplicationScript) Validate(_ context.Context, sc *execution.StepContext) error {
	return requireFile(sc, "script", sc.String("script"))
}

func (a *ApplicationScript) Setup(_ context.Context, sc *execution.StepContext) (*execution.Script, error) {
	cmd, err := userCommand(sc)
	if err != nil {
		return nil, err
	}
	s, err := a.script(sc, nil, cmd)
	if err != nil {
		return nil, err
	}
	if name := sc.String("applicationName"); name != "" {
		s.Name = fmt.Sprintf("%s_%s_Run_%d.sh", name, sc.Version, sc.Index)
	}
	return s, nil
}
