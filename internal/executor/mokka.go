package executor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/software"
	"github.com/me/ilcdirac/pkg/model"
)

// LocalDB bootstraps the detector geometry database Mokka connects to and
// returns the shell commands that start it before the simulation runs.
type LocalDB interface {
	Prepare(ctx context.Context, sc *execution.StepContext, rel *software.Release, dbSlice string) ([]string, error)
}

// Mokka runs the Geant4 based ILD simulation.
type Mokka struct {
	app
}

func (m *Mokka) Validate(_ context.Context, sc *execution.StepContext) error {
	if err := requireFile(sc, "steeringFile", sc.String("steeringFile")); err != nil {
		return err
	}
	mac := sc.String("macFile")
	if mac != "" {
		if err := requireFile(sc, "macFile", mac); err != nil {
			return err
		}
	} else if sc.Events("numberOfEvents") <= 0 {
		return model.NewJobError(model.ErrUnderspecifiedStep, "Validate",
			"Mokka needs a number of events or a macro file", map[string]any{"step": sc.Step})
	}
	if gen := sc.String("inputGenfile"); gen != "" {
		return requireFile(sc, "inputGenfile", gen)
	}
	return nil
}

func (m *Mokka) Setup(ctx context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := m.release(sc)
	if err != nil {
		return nil, err
	}

	mac := sc.String("macFile")
	if mac == "" {
		mac = fmt.Sprintf("mokkamac_%d.mac", sc.Index)
		if err := os.WriteFile(sc.Path(mac), []byte(mokkaMacro(sc)), 0o644); err != nil {
			return nil, fmt.Errorf("write macro: %w", err)
		}
	}

	steer := fmt.Sprintf("mokka_%d.steer", sc.Index)
	if err := writeMokkaSteering(sc, sc.Path(execution.LocalName(sc.String("steeringFile"))), sc.Path(steer), mac); err != nil {
		return nil, err
	}

	var commands []string
	if m.deps.MokkaDB != nil {
		dbCmds, err := m.deps.MokkaDB.Prepare(ctx, sc, rel, sc.String("dbSlice"))
		if err != nil {
			return nil, fmt.Errorf("prepare local database: %w", err)
		}
		commands = append(commands, dbCmds...)
	}
	commands = append(commands, execution.Command("Mokka", "-U", steer))

	s, err := m.script(sc, rel, commands...)
	if err != nil {
		return nil, err
	}
	s.Env["G4PATH"] = rel.Dir
	return s, nil
}

func mokkaMacro(sc *execution.StepContext) string {
	var b strings.Builder
	if gen := sc.String("inputGenfile"); gen != "" {
		fmt.Fprintf(&b, "/generator/generator %s\n", execution.LocalName(gen))
	}
	if start := sc.Int("startFrom"); start > 0 {
		fmt.Fprintf(&b, "/generator/skipEvents %d\n", start)
	}
	fmt.Fprintf(&b, "/run/beamOn %d\n", sc.Events("numberOfEvents"))
	return b.String()
}

// writeMokkaSteering copies the user steering file, dropping the
// directives the job controls and appending them with the step values.
func writeMokkaSteering(sc *execution.StepContext, src, dest, mac string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	overrides := map[string]string{
		"/Mokka/init/BatchMode":        "true",
		"/Mokka/init/initialMacroFile": mac,
		"/Mokka/init/lcioFilename":     sc.String("outputFile"),
		"/Mokka/init/detectorModel":    sc.String("detectorModel"),
		"/Mokka/init/randomSeed":       fmt.Sprint(sc.Int("randomSeed")),
		"/Mokka/init/startEventNumber": fmt.Sprint(sc.Int("startFrom")),
	}
	if sc.String("outputFile") == "" {
		delete(overrides, "/Mokka/init/lcioFilename")
	}
	if sc.String("detectorModel") == "" {
		delete(overrides, "/Mokka/init/detectorModel")
	}

	var b strings.Builder
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if _, ok := overrides[fields[0]]; ok {
				continue
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read steering %s: %w", src, err)
	}
	b.WriteString("#Set by the job\n")
	for _, key := range sortedKeys(overrides) {
		fmt.Fprintf(&b, "%s %s\n", key, overrides[key])
	}
	return os.WriteFile(dest, []byte(b.String()), 0o644)
}
