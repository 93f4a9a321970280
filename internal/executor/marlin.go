package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/me/ilcdirac/internal/execution"
)

// Marlin runs the ILD reconstruction.
type Marlin struct {
	app
}

func (m *Marlin) Validate(_ context.Context, sc *execution.StepContext) error {
	if err := requireFile(sc, "inputXML", sc.String("inputXML")); err != nil {
		return err
	}
	if gear := sc.String("inputGEAR"); gear != "" {
		if err := requireFile(sc, "inputGEAR", gear); err != nil {
			return err
		}
	}
	return requireFiles(sc, "inputSlcio", sc.InputFiles("inputSlcio", ".slcio"))
}

func (m *Marlin) Setup(_ context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := m.release(sc)
	if err != nil {
		return nil, err
	}

	args := []string{
		"--global.LCIOInputFiles=" + strings.Join(sc.InputFiles("inputSlcio", ".slcio"), " "),
	}
	if gear := sc.String("inputGEAR"); gear != "" {
		args = append(args, "--global.GearXMLFile="+execution.LocalName(gear))
	}
	maxRecords := 0
	if n := sc.Events("EvtsToProcess"); n > 0 {
		maxRecords = n
	}
	args = append(args, fmt.Sprintf("--global.MaxRecordNumber=%d", maxRecords))
	verbosity := "WARNING"
	if sc.Debug {
		verbosity = "DEBUG"
	}
	args = append(args, "--global.Verbosity="+verbosity)
	if out := sc.String("outputFile"); out != "" {
		args = append(args, "--MyLCIOOutputProcessor.LCIOOutputFile="+out)
	}
	args = append(args, execution.LocalName(sc.String("inputXML")))

	s, err := m.script(sc, rel, execution.Command("Marlin", args...))
	if err != nil {
		return nil, err
	}
	dlls, err := marlinDLLs(sc, rel.Path("MARLIN_DLL"))
	if err != nil {
		return nil, err
	}
	if len(dlls) > 0 {
		s.Env["MARLIN_DLL"] = strings.Join(dlls, ":")
	}
	return s, nil
}

// marlinDLLs lists the processor libraries to load: those shipped in the
// job sandbox first, then the release ones not overridden by name.
func marlinDLLs(sc *execution.StepContext, releaseDir string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, dir := range []string{sc.Path(filepath.Join("lib", "marlin_dll")), releaseDir} {
		libs, err := filepath.Glob(filepath.Join(dir, "*.so"))
		if err != nil {
			return nil, err
		}
		sort.Strings(libs)
		for _, lib := range libs {
			if seen[filepath.Base(lib)] {
				continue
			}
			seen[filepath.Base(lib)] = true
			out = append(out, lib)
		}
	}
	return out, nil
}
