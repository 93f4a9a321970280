package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/ilcdirac/internal/detector"
	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/pkg/model"
)

// SLIC runs the SiD simulation.
type SLIC struct {
	app
}

// ensureDetector makes the geometry of model available in the work
// directory and returns its directory.
func (a *app) ensureDetector(ctx context.Context, sc *execution.StepContext, ref string) (string, error) {
	if ref == "" {
		return "", model.NewJobError(model.ErrMissingDetectorModel, "Validate",
			fmt.Sprintf("%s: no detector model given", sc.Step), map[string]any{"step": sc.Step})
	}
	if a.deps.Detectors == nil {
		dir := sc.Path(detector.ModelName(ref))
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir, nil
		}
		return "", model.NewJobError(model.ErrMissingDetectorModel, "Validate",
			fmt.Sprintf("detector model %s not found and no mirrors configured", ref),
			map[string]any{"model": ref})
	}
	return a.deps.Detectors.Ensure(ctx, ref, sc.Job.WorkDir)
}

func (s *SLIC) Validate(ctx context.Context, sc *execution.StepContext) error {
	if mac := sc.String("inputmacFile"); mac != "" {
		if err := requireFile(sc, "inputmacFile", mac); err != nil {
			return err
		}
	} else if err := requireFile(sc, "stdhepFile", sc.String("stdhepFile")); err != nil {
		return err
	}
	_, err := s.ensureDetector(ctx, sc, sc.String("detectorModel"))
	return err
}

func (s *SLIC) Setup(ctx context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := s.release(sc)
	if err != nil {
		return nil, err
	}
	dir, err := s.ensureDetector(ctx, sc, sc.String("detectorModel"))
	if err != nil {
		return nil, err
	}
	name := detector.ModelName(sc.String("detectorModel"))

	args := []string{"-g", filepath.Join(dir, name+".lcdd")}
	if mac := sc.String("inputmacFile"); mac != "" {
		args = append(args, "-m", execution.LocalName(mac))
	} else {
		args = append(args, "-i", execution.LocalName(sc.String("stdhepFile")))
	}
	args = append(args, "-r", fmt.Sprint(sc.Events("numberOfEvents")))
	if start := sc.Int("startFrom"); start > 0 {
		args = append(args, "-s", fmt.Sprint(start))
	}
	if seed := sc.Int("randomSeed"); seed > 0 {
		args = append(args, "-d", fmt.Sprint(seed))
	}
	if out := sc.String("outputFile"); out != "" {
		args = append(args, "-o", strings.TrimSuffix(out, ".slcio"))
	}

	script, err := s.script(sc, rel, execution.Command("slic", args...))
	if err != nil {
		return nil, err
	}
	script.Env["SLIC_DIR"] = rel.Dir
	return script, nil
}

// SLICPandora runs the Pandora particle flow on SiD events.
type SLICPandora struct {
	app
}

// detectorXML returns the geometry file of the step: a local xml file, or
// the pandora geometry of a named detector model.
func (p *SLICPandora) detectorXML(ctx context.Context, sc *execution.StepContext) (string, error) {
	ref := sc.String("DetectorXML")
	if strings.HasSuffix(ref, ".xml") {
		if err := requireFile(sc, "DetectorXML", ref); err != nil {
			return "", err
		}
		return execution.LocalName(ref), nil
	}
	dir, err := p.ensureDetector(ctx, sc, ref)
	if err != nil {
		return "", err
	}
	name := detector.ModelName(ref)
	xml := filepath.Join(dir, name+"_pandora.xml")
	if _, err := os.Stat(xml); err != nil {
		return "", model.NewJobError(model.ErrMissingDetectorModel, "Validate",
			fmt.Sprintf("detector model %s has no pandora geometry", name),
			map[string]any{"model": name, "file": xml})
	}
	return xml, nil
}

func (p *SLICPandora) Validate(ctx context.Context, sc *execution.StepContext) error {
	if _, err := p.detectorXML(ctx, sc); err != nil {
		return err
	}
	return requireFiles(sc, "inputSlcio", sc.InputFiles("inputSlcio", ".slcio"))
}

func (p *SLICPandora) Setup(ctx context.Context, sc *execution.StepContext) (*execution.Script, error) {
	rel, err := p.release(sc)
	if err != nil {
		return nil, err
	}
	xml, err := p.detectorXML(ctx, sc)
	if err != nil {
		return nil, err
	}

	settings := execution.LocalName(sc.String("PandoraSettings"))
	if settings == "." || settings == "" {
		settings = "PandoraSettings.xml"
	}
	if _, err := os.Stat(sc.Path(settings)); err != nil {
		// Fall back to the settings shipped with the release.
		if err := copyInto(sc, rel.Path("Settings", "PandoraSettings.xml"), settings); err != nil {
			return nil, model.NewJobError(model.ErrMissingInputFile, "Setup",
				fmt.Sprintf("no pandora settings %s in the sandbox or the release", settings),
				map[string]any{"file": settings, "release": rel.Dir})
		}
	}

	inputs := sc.InputFiles("inputSlcio", ".slcio")
	out := sc.String("outputFile")
	if out == "" {
		out = "pandora.slcio"
	}
	cmd := execution.Command("PandoraFrontend", xml, settings, strings.Join(inputs, ","), out,
		fmt.Sprint(sc.Events("EvtsToProcess")))
	script, err := p.script(sc, rel, cmd)
	if err != nil {
		return nil, err
	}
	script.Env["PANDORASETTINGSDIR"] = rel.Path("Settings")
	return script, nil
}
