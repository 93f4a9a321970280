package executor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/report"
	"github.com/me/ilcdirac/internal/software"
	"github.com/me/ilcdirac/internal/storage"
	"github.com/me/ilcdirac/pkg/model"
)

const testPlatform = "x86_64-slc5-gcc43-opt"

// installRelease creates an installed release of app/version with bin and
// lib directories and returns the area.
func installRelease(t *testing.T, app, version string) (*software.Area, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, app+"_"+version)
	for _, sub := range []string{"bin", "lib"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	area := software.NewArea(software.Config{
		LocalArea: root,
		Tarballs: map[string]map[string]map[string]string{
			testPlatform: {app: {version: app + "_" + version + ".tgz"}},
		},
	})
	return area, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func stepContext(t *testing.T, kind model.StepKind, version string, params map[string]any) *execution.StepContext {
	t.Helper()
	wf := &model.Workflow{Name: "t", SystemConfig: testPlatform}
	job := execution.NewJobContext(wf, "", t.TempDir(), nil)
	step := &model.Step{Name: string(kind) + "Step1", Kind: kind, Index: 1}
	sc := execution.NewStepContext(job, step, params, slog.New(slog.DiscardHandler))
	sc.Version = version
	return sc
}

func TestRegistry_AllKinds(t *testing.T) {
	reg := NewRegistry(Deps{})
	kinds := []model.StepKind{
		model.KindMokka, model.KindMarlin, model.KindSLIC, model.KindLCSIM,
		model.KindSLICPandora, model.KindWhizard, model.KindRootMacro,
		model.KindRootExecutable, model.KindApplicationScript, model.KindGetSRM,
		model.KindStdHepConverter,
	}
	for _, k := range kinds {
		m, err := reg.Get(k)
		if err != nil {
			t.Errorf("Get(%s): %v", k, err)
			continue
		}
		if m.Kind() != k {
			t.Errorf("Get(%s) returned module of kind %s", k, m.Kind())
		}
	}
	if _, err := reg.Get("Unknown"); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, ok := mustGet(t, reg, model.KindGetSRM).(execution.NativeModule); !ok {
		t.Error("GetSRM should run in-process")
	}
}

func mustGet(t *testing.T, reg *Registry, kind model.StepKind) execution.Module {
	t.Helper()
	m, err := reg.Get(kind)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMarlin_Setup(t *testing.T) {
	area, dir := installRelease(t, "marlin", "v0111Prod")
	writeFile(t, filepath.Join(dir, "lib"), "libc.so.6", "x")
	os.MkdirAll(filepath.Join(dir, "MARLIN_DLL"), 0o755)
	writeFile(t, filepath.Join(dir, "MARLIN_DLL"), "libMarlinReco.so", "x")

	reg := NewRegistry(Deps{Software: area})
	sc := stepContext(t, model.KindMarlin, "v0111Prod", map[string]any{
		"inputXML":      "steer.xml",
		"inputGEAR":     "GearOutput.xml",
		"inputSlcio":    []string{"LFN:/ilc/prod/sim_1.slcio"},
		"EvtsToProcess": 10,
		"outputFile":    "rec.slcio",
	})
	for _, f := range []string{"steer.xml", "GearOutput.xml", "sim_1.slcio"} {
		writeFile(t, sc.Job.WorkDir, f, "")
	}

	m := mustGet(t, reg, model.KindMarlin)
	if err := m.Validate(context.Background(), sc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s, err := m.Setup(context.Background(), sc)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	cmd := s.Commands[0]
	for _, want := range []string{
		"Marlin ",
		"--global.LCIOInputFiles=sim_1.slcio",
		"--global.GearXMLFile=GearOutput.xml",
		"--global.MaxRecordNumber=10",
		"--MyLCIOOutputProcessor.LCIOOutputFile=rec.slcio",
		"steer.xml",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command %q missing %q", cmd, want)
		}
	}
	if !strings.HasSuffix(s.Env["MARLIN_DLL"], "libMarlinReco.so") {
		t.Errorf("MARLIN_DLL = %q", s.Env["MARLIN_DLL"])
	}
	if len(s.PathDirs) != 1 || s.PathDirs[0] != filepath.Join(dir, "bin") {
		t.Errorf("PathDirs = %v", s.PathDirs)
	}
	if _, err := os.Stat(filepath.Join(dir, "lib", "libc.so.6")); !os.IsNotExist(err) {
		t.Error("libc should be removed from the release")
	}
}

func TestMarlin_ValidateMissingInput(t *testing.T) {
	reg := NewRegistry(Deps{})
	sc := stepContext(t, model.KindMarlin, "v1", map[string]any{
		"inputXML":   "steer.xml",
		"inputSlcio": []string{"missing.slcio"},
	})
	writeFile(t, sc.Job.WorkDir, "steer.xml", "")
	err := mustGet(t, reg, model.KindMarlin).Validate(context.Background(), sc)
	if !model.IsCode(err, model.ErrMissingInputFile) {
		t.Fatalf("expected MISSING_INPUT_FILE, got %v", err)
	}
}

func TestMarlin_SetupMissingSoftware(t *testing.T) {
	reg := NewRegistry(Deps{Software: software.NewArea(software.Config{})})
	sc := stepContext(t, model.KindMarlin, "v1", map[string]any{"inputXML": "steer.xml"})
	_, err := mustGet(t, reg, model.KindMarlin).Setup(context.Background(), sc)
	if !model.IsCode(err, model.ErrMissingSoftware) {
		t.Fatalf("expected MISSING_SOFTWARE, got %v", err)
	}
}

func TestSLIC_MissingDetector(t *testing.T) {
	reg := NewRegistry(Deps{})
	sc := stepContext(t, model.KindSLIC, "v2r8", map[string]any{
		"stdhepFile":    "gen.stdhep",
		"detectorModel": "sidloi3",
	})
	writeFile(t, sc.Job.WorkDir, "gen.stdhep", "")
	err := mustGet(t, reg, model.KindSLIC).Validate(context.Background(), sc)
	if !model.IsCode(err, model.ErrMissingDetectorModel) {
		t.Fatalf("expected MISSING_DETECTOR_MODEL, got %v", err)
	}
}

func TestSLIC_Setup(t *testing.T) {
	area, _ := installRelease(t, "slic", "v2r8")
	reg := NewRegistry(Deps{Software: area})
	sc := stepContext(t, model.KindSLIC, "v2r8", map[string]any{
		"stdhepFile":     "gen.stdhep",
		"detectorModel":  "sidloi3",
		"numberOfEvents": 25,
		"outputFile":     "sim.slcio",
	})
	writeFile(t, sc.Job.WorkDir, "gen.stdhep", "")
	os.MkdirAll(sc.Path("sidloi3"), 0o755)

	m := mustGet(t, reg, model.KindSLIC)
	if err := m.Validate(context.Background(), sc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s, err := m.Setup(context.Background(), sc)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	want := "slic -g " + filepath.Join(sc.Path("sidloi3"), "sidloi3.lcdd") + " -i gen.stdhep -r 25 -o sim"
	if s.Commands[0] != want {
		t.Errorf("command = %q, want %q", s.Commands[0], want)
	}
}

func TestMokka_Steering(t *testing.T) {
	area, _ := installRelease(t, "mokka", "0706P08")
	reg := NewRegistry(Deps{Software: area})
	sc := stepContext(t, model.KindMokka, "0706P08", map[string]any{
		"steeringFile":   "clic.steer",
		"inputGenfile":   "gen.stdhep",
		"numberOfEvents": 100,
		"detectorModel":  "CLIC_ILD_CDR",
		"outputFile":     "sim.slcio",
	})
	writeFile(t, sc.Job.WorkDir, "clic.steer", "/Mokka/init/detectorModel ILD_00\n/Mokka/init/userInitInt x\n")
	writeFile(t, sc.Job.WorkDir, "gen.stdhep", "")

	m := mustGet(t, reg, model.KindMokka)
	if err := m.Validate(context.Background(), sc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s, err := m.Setup(context.Background(), sc)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if s.Commands[len(s.Commands)-1] != "Mokka -U mokka_1.steer" {
		t.Errorf("command = %q", s.Commands[len(s.Commands)-1])
	}
	steer, _ := os.ReadFile(sc.Path("mokka_1.steer"))
	text := string(steer)
	if strings.Contains(text, "ILD_00") {
		t.Error("user detector model should be replaced")
	}
	for _, want := range []string{
		"/Mokka/init/userInitInt x",
		"/Mokka/init/detectorModel CLIC_ILD_CDR",
		"/Mokka/init/initialMacroFile mokkamac_1.mac",
		"/Mokka/init/lcioFilename sim.slcio",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("steering missing %q:\n%s", want, text)
		}
	}
	mac, _ := os.ReadFile(sc.Path("mokkamac_1.mac"))
	if string(mac) != "/generator/generator gen.stdhep\n/run/beamOn 100\n" {
		t.Errorf("macro = %q", mac)
	}
}

func TestMokka_NeedsEventsOrMacro(t *testing.T) {
	reg := NewRegistry(Deps{})
	sc := stepContext(t, model.KindMokka, "v1", map[string]any{"steeringFile": "clic.steer"})
	writeFile(t, sc.Job.WorkDir, "clic.steer", "")
	err := mustGet(t, reg, model.KindMokka).Validate(context.Background(), sc)
	if !model.IsCode(err, model.ErrUnderspecifiedStep) {
		t.Fatalf("expected UNDERSPECIFIED_STEP, got %v", err)
	}
}

func TestMokka_MacroStillChecksGenfile(t *testing.T) {
	reg := NewRegistry(Deps{})
	sc := stepContext(t, model.KindMokka, "v1", map[string]any{
		"steeringFile": "clic.steer",
		"macFile":      "run.mac",
		"inputGenfile": "gen.stdhep",
	})
	writeFile(t, sc.Job.WorkDir, "clic.steer", "")
	writeFile(t, sc.Job.WorkDir, "run.mac", "")
	m := mustGet(t, reg, model.KindMokka)
	err := m.Validate(context.Background(), sc)
	if !model.IsCode(err, model.ErrMissingInputFile) {
		t.Fatalf("expected MISSING_INPUT_FILE for gen.stdhep, got %v", err)
	}

	writeFile(t, sc.Job.WorkDir, "gen.stdhep", "")
	if err := m.Validate(context.Background(), sc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

type fakeDB struct{ slice string }

func (f *fakeDB) Prepare(_ context.Context, _ *execution.StepContext, _ *software.Release, dbSlice string) ([]string, error) {
	f.slice = dbSlice
	return []string{"start-db"}, nil
}

func TestMokka_LocalDBHook(t *testing.T) {
	area, _ := installRelease(t, "mokka", "v1")
	db := &fakeDB{}
	reg := NewRegistry(Deps{Software: area, MokkaDB: db})
	sc := stepContext(t, model.KindMokka, "v1", map[string]any{
		"steeringFile":   "clic.steer",
		"numberOfEvents": 1,
		"dbSlice":        "slice.sql",
	})
	writeFile(t, sc.Job.WorkDir, "clic.steer", "")
	s, err := mustGet(t, reg, model.KindMokka).Setup(context.Background(), sc)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if s.Commands[0] != "start-db" || db.slice != "slice.sql" {
		t.Errorf("commands = %v, slice = %q", s.Commands, db.slice)
	}
}

func TestWhizard_Input(t *testing.T) {
	area, _ := installRelease(t, "whizard", "SM_1.95")
	reg := NewRegistry(Deps{Software: area})
	sc := stepContext(t, model.KindWhizard, "SM_1.95", map[string]any{
		"InputFile":  "template.in",
		"EvtType":    "ee_h_mumu",
		"NbOfEvts":   500,
		"RandomSeed": 12,
		"outputFile": "gen.stdhep",
	})
	writeFile(t, sc.Job.WorkDir, "template.in", "&process_input\n process_id = \"x\"\n n_events = 1\n seed = 0\n/\n")

	s, err := mustGet(t, reg, model.KindWhizard).Setup(context.Background(), sc)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	in, _ := os.ReadFile(sc.Path("whizard.in"))
	want := "&process_input\n process_id = \"ee_h_mumu\"\n n_events = 500\n seed = 12\n/\n"
	if string(in) != want {
		t.Errorf("whizard.in = %q, want %q", in, want)
	}
	if !strings.Contains(strings.Join(s.Commands, "\n"), "mv whizard.001.stdhep gen.stdhep") {
		t.Errorf("commands = %v", s.Commands)
	}
}

func TestGetSRM_Execute(t *testing.T) {
	root := t.TempDir()
	se, err := storage.NewLocalElement("CERN-SRM", "LCG.CERN.ch", root)
	if err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Join(root, "ilc/prod"), 0o755)
	writeFile(t, filepath.Join(root, "ilc/prod"), "gen.stdhep", "events")
	sreg := storage.NewRegistry(nil)
	sreg.Register(se)

	reg := NewRegistry(Deps{Storage: sreg})
	sc := stepContext(t, model.KindGetSRM, "", map[string]any{
		"srmfiles": "{'file': '/ilc/prod/gen.stdhep', 'site': 'LCG.CERN.ch'}",
	})
	m := mustGet(t, reg, model.KindGetSRM).(execution.NativeModule)
	if err := m.Validate(context.Background(), sc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := m.Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(sc.Path("gen.stdhep"))
	if err != nil || string(data) != "events" {
		t.Fatalf("staged file = %q, %v", data, err)
	}
}

func TestGetSRM_NoFiles(t *testing.T) {
	reg := NewRegistry(Deps{Storage: storage.NewRegistry(nil)})
	sc := stepContext(t, model.KindGetSRM, "", map[string]any{"srmfiles": ""})
	err := mustGet(t, reg, model.KindGetSRM).Validate(context.Background(), sc)
	if !model.IsCode(err, model.ErrMissingInputFile) {
		t.Fatalf("expected MISSING_INPUT_FILE, got %v", err)
	}
}

func TestStdHepConverter(t *testing.T) {
	area, dir := installRelease(t, "lcio", "v01-51")
	reg := NewRegistry(Deps{Software: area})
	sc := stepContext(t, model.KindStdHepConverter, "v01-51", map[string]any{})
	m := mustGet(t, reg, model.KindStdHepConverter)
	if err := m.Validate(context.Background(), sc); !model.IsCode(err, model.ErrMissingInputFile) {
		t.Fatalf("expected MISSING_INPUT_FILE without stdhep files, got %v", err)
	}
	writeFile(t, sc.Job.WorkDir, "gen.stdhep", "")
	if err := m.Validate(context.Background(), sc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s, err := m.Setup(context.Background(), sc)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if s.Commands[0] != stdhepLoop || s.Env["LCIO"] != dir {
		t.Errorf("script = %+v", s)
	}
}

// TestApplicationScript_Engine runs a user script end to end through the
// execution engine.
func TestApplicationScript_Engine(t *testing.T) {
	step := &model.Step{
		Name:  "ApplicationScriptStep1",
		Kind:  model.KindApplicationScript,
		Index: 1,
		Parameters: []model.Parameter{
			{Name: "applicationName", Type: model.TypeString, Value: model.Literal("hello")},
			{Name: "applicationVersion", Type: model.TypeString, Value: model.Literal("1")},
			{Name: "script", Type: model.TypeString, Value: model.Literal("hello.sh")},
			{Name: "arguments", Type: model.TypeString, Value: model.Literal("world")},
			{Name: "applicationLog", Type: model.TypeString, Value: model.Literal("hello.log")},
		},
	}
	wf := &model.Workflow{Name: "t", Steps: []*model.Step{step}, StepCount: 1, SystemConfig: testPlatform}
	mem := report.NewMemory()
	job := execution.NewJobContext(wf, "9", t.TempDir(), execution.NewReporter("9", mem, nil))
	writeFile(t, job.WorkDir, "hello.sh", "#!/bin/sh\necho \"hello $1\"\n")

	engine := execution.NewEngine(execution.Config{Logger: slog.New(slog.DiscardHandler)})
	res := engine.RunStep(context.Background(), job, wf, step, mustGet(t, NewRegistry(Deps{}), model.KindApplicationScript))
	if !res.OK() {
		t.Fatalf("step failed: %v", res.Err)
	}
	log, err := os.ReadFile(filepath.Join(job.WorkDir, "hello.log"))
	if err != nil || string(log) != "hello world\n" {
		t.Fatalf("log = %q, %v", log, err)
	}
	if _, err := os.Stat(filepath.Join(job.WorkDir, "hello_1_Run_1.sh")); err != nil {
		t.Errorf("script not written under the application name: %v", err)
	}
	statuses := mem.Statuses("9")
	if statuses[len(statuses)-1] != "ApplicationScript 1 Successful" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestUserJobFinalization(t *testing.T) {
	root := t.TempDir()
	se, _ := storage.NewLocalElement("CERN-SRM", "LCG.CERN.ch", root)
	sreg := storage.NewRegistry(nil)
	sreg.Register(se)

	wf := &model.Workflow{Name: "t", OutputData: []string{"rec.slcio"}, OutputPath: "prod/h", OutputSE: []string{"CERN-SRM"}}
	mem := report.NewMemory()
	job := execution.NewJobContext(wf, "3", t.TempDir(), execution.NewReporter("3", mem, nil))
	job.Credentials.Owner = "jdoe"
	writeFile(t, job.WorkDir, "rec.slcio", "payload")

	meta, err := NewUserJobFinalization(sreg, nil).Finalize(context.Background(), job)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	lfn := "/ilc/user/j/jdoe/prod/h/rec.slcio"
	if len(meta) != 1 || meta[0].LFN != lfn || meta[0].GUID == "" || meta[0].Checksum == "" {
		t.Fatalf("metadata = %+v", meta)
	}
	if _, err := os.Stat(filepath.Join(root, lfn)); err != nil {
		t.Errorf("uploaded file: %v", err)
	}
	if v, _ := mem.Parameter("3", UploadedOutputDataParam); v != lfn {
		t.Errorf("%s = %q", UploadedOutputDataParam, v)
	}
}

func TestUserJobFinalization_MissingOutput(t *testing.T) {
	sreg := storage.NewRegistry(nil)
	se, _ := storage.NewLocalElement("CERN-SRM", "LCG.CERN.ch", t.TempDir())
	sreg.Register(se)
	wf := &model.Workflow{Name: "t", OutputData: []string{"rec.slcio"}}
	job := execution.NewJobContext(wf, "", t.TempDir(), nil)
	job.Credentials.Owner = "jdoe"

	_, err := NewUserJobFinalization(sreg, nil).Finalize(context.Background(), job)
	if !model.IsCode(err, model.ErrApplicationFailed) {
		t.Fatalf("expected APPLICATION_FAILED, got %v", err)
	}

	job.IgnoreAppErrors = true
	meta, err := NewUserJobFinalization(sreg, nil).Finalize(context.Background(), job)
	if err != nil || len(meta) != 0 {
		t.Fatalf("ignored missing output: meta=%v err=%v", meta, err)
	}
}
