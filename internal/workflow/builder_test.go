package workflow

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/me/ilcdirac/internal/processlist"
	"github.com/me/ilcdirac/pkg/model"
)

func intp(n int) *int { return &n }

// newTestBuilder returns a builder rooted in a temp dir holding the named files.
func newTestBuilder(t *testing.T, files ...string) *Builder {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return NewBuilder("test", WithBaseDir(dir))
}

func literalOf(t *testing.T, s *model.Step, name string) any {
	t.Helper()
	p := s.Param(name)
	if p == nil {
		t.Fatalf("%s has no parameter %s", s.Name, name)
	}
	if p.Value == nil || p.Value.IsLink() {
		t.Fatalf("%s.%s is not a literal: %+v", s.Name, name, p.Value)
	}
	return p.Value.Literal
}

func linkOf(t *testing.T, s *model.Step, name string) model.Link {
	t.Helper()
	p := s.Param(name)
	if p == nil || !p.Value.IsLink() {
		t.Fatalf("%s.%s is not a link", s.Name, name)
	}
	return *p.Value.Link
}

func TestAddMokka_Scenario(t *testing.T) {
	b := newTestBuilder(t, "geom.steer")
	s, err := b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(100)})
	if err != nil {
		t.Fatalf("AddMokka: %v", err)
	}
	if s.Name != "MokkaStep1" {
		t.Errorf("Name = %q", s.Name)
	}
	if got := literalOf(t, s, "applicationVersion"); got != "v01" {
		t.Errorf("applicationVersion = %v", got)
	}
	if got := literalOf(t, s, "numberOfEvents"); got != 100 {
		t.Errorf("numberOfEvents = %v", got)
	}
	if got, ok := s.LiteralValue("startFrom"); !ok || got != 0 {
		t.Errorf("startFrom = %v", got)
	}
	if got := b.Workflow().Packages(); !reflect.DeepEqual(got, []string{"mokka.v01"}) {
		t.Errorf("packages = %v", got)
	}
	if b.Workflow().Roles[model.RoleSimulation] != "MokkaStep1" {
		t.Errorf("roles = %v", b.Workflow().Roles)
	}
	if !reflect.DeepEqual(s.Modules, []string{"MokkaAnalysis"}) {
		t.Errorf("modules = %v", s.Modules)
	}
}

func TestAdd_InvalidTypeIsAtomic(t *testing.T) {
	b := newTestBuilder(t, "geom.steer")
	tests := []struct {
		name  string
		kind  model.StepKind
		args  map[string]any
		param string
	}{
		{"string events", model.KindMokka, map[string]any{"version": "v01", "steeringFile": "geom.steer", "numberOfEvents": "100"}, "numberOfEvents"},
		{"int version", model.KindMokka, map[string]any{"version": 1, "steeringFile": "geom.steer"}, "version"},
		{"bool debug", model.KindMarlin, map[string]any{"version": "v1", "debug": "yes"}, "debug"},
		{"list of ints", model.KindLCSIM, map[string]any{"version": "v1", "inputFiles": []any{1, 2}}, "inputFiles"},
		{"unknown", model.KindSLIC, map[string]any{"version": "v1", "colour": "red"}, "colour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Add(tt.kind, tt.args)
			if !model.IsCode(err, model.ErrInvalidArgument) {
				t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
			}
			je := err.(*model.JobError)
			if !strings.Contains(je.Message, tt.param) {
				t.Errorf("message %q does not name %s", je.Message, tt.param)
			}
			if b.StepCount() != 0 || len(b.Workflow().Steps) != 0 {
				t.Error("workflow mutated on failed add")
			}
			if b.Workflow().SoftwarePackages != "" {
				t.Error("manifest mutated on failed add")
			}
		})
	}
}

func TestAddMokka_MissingFile(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "nope.steer", NumberOfEvents: intp(1)})
	if !model.IsCode(err, model.ErrMissingInputFile) {
		t.Fatalf("err = %v, want MISSING_INPUT_FILE", err)
	}
	if b.StepCount() != 0 {
		t.Error("step count changed")
	}
}

func TestAddMokka_LFNAccepted(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "LFN:/ilc/prod/steer/clic.steer", NumberOfEvents: intp(5)})
	if err != nil {
		t.Fatalf("AddMokka: %v", err)
	}
	if got := b.Workflow().InputSandbox; !reflect.DeepEqual(got, []string{"LFN:/ilc/prod/steer/clic.steer"}) {
		t.Errorf("input sandbox = %v", got)
	}
}

func TestAddMokka_Underspecified(t *testing.T) {
	b := newTestBuilder(t, "geom.steer")
	_, err := b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer"})
	if !model.IsCode(err, model.ErrUnderspecifiedStep) {
		t.Fatalf("err = %v, want UNDERSPECIFIED_STEP", err)
	}
}

func TestAddMarlin_LinksToMokka(t *testing.T) {
	b := newTestBuilder(t, "geom.steer", "reco.xml")
	if _, err := b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(100)}); err != nil {
		t.Fatal(err)
	}
	s, err := b.AddMarlin(MarlinOptions{Version: "v0111", XMLFile: "reco.xml"})
	if err != nil {
		t.Fatalf("AddMarlin: %v", err)
	}
	if got := linkOf(t, s, "inputSlcio"); got != (model.Link{Step: "MokkaStep1", Param: "outputFile"}) {
		t.Errorf("inputSlcio = %v", got)
	}
	if got := linkOf(t, s, "EvtsToProcess"); got != (model.Link{Step: "MokkaStep1", Param: "numberOfEvents"}) {
		t.Errorf("EvtsToProcess = %v", got)
	}
	if got := literalOf(t, s, "inputGEAR"); got != "GearOutput.xml" {
		t.Errorf("inputGEAR = %v", got)
	}
	want := []string{"mokka.v01", "marlin.v0111"}
	if got := b.Workflow().Packages(); !reflect.DeepEqual(got, want) {
		t.Errorf("packages = %v, want %v", got, want)
	}
}

func TestAddMarlin_ExplicitEventCount(t *testing.T) {
	b := newTestBuilder(t, "geom.steer", "reco.xml")
	b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(100)})
	s, err := b.AddMarlin(MarlinOptions{Version: "v0111", XMLFile: "reco.xml", NumberOfEvents: intp(10)})
	if err != nil {
		t.Fatal(err)
	}
	if got := literalOf(t, s, "EvtsToProcess"); got != 10 {
		t.Errorf("EvtsToProcess = %v", got)
	}
	linkOf(t, s, "inputSlcio")
}

func TestAddMarlin_NoProducer(t *testing.T) {
	b := newTestBuilder(t, "reco.xml", "gear.xml")
	_, err := b.AddMarlin(MarlinOptions{Version: "v0111", XMLFile: "reco.xml", GearFile: "gear.xml"})
	if !model.IsCode(err, model.ErrUnresolvedLink) {
		t.Fatalf("err = %v, want UNRESOLVED_LINK", err)
	}
	je := err.(*model.JobError)
	if !strings.Contains(je.Message, "Mokka") {
		t.Errorf("message should name the expected producer: %q", je.Message)
	}
	if b.StepCount() != 0 {
		t.Error("step count changed")
	}
}

func TestAddMarlin_LiteralInputsNoMokka(t *testing.T) {
	b := newTestBuilder(t, "reco.xml", "gear.xml", "in.slcio")
	s, err := b.AddMarlin(MarlinOptions{Version: "v0111", XMLFile: "reco.xml", GearFile: "gear.xml", InputFiles: []string{"in.slcio"}})
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := s.LiteralValue("EvtsToProcess"); !ok || got != -1 {
		t.Errorf("EvtsToProcess = %v, want default -1", got)
	}
}

func TestMultipleChainsLinkToNearest(t *testing.T) {
	b := newTestBuilder(t, "geom.steer", "reco.xml")
	mokka := MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(10)}
	marlin := MarlinOptions{Version: "v0111", XMLFile: "reco.xml"}

	b.AddMokka(mokka)
	m1, err := b.AddMarlin(marlin)
	if err != nil {
		t.Fatal(err)
	}
	b.AddMokka(mokka)
	m2, err := b.AddMarlin(marlin)
	if err != nil {
		t.Fatal(err)
	}

	if got := linkOf(t, m1, "inputSlcio").Step; got != "MokkaStep1" {
		t.Errorf("first Marlin links to %s", got)
	}
	if got := linkOf(t, m2, "inputSlcio").Step; got != "MokkaStep3" {
		t.Errorf("second Marlin links to %s, want MokkaStep3", got)
	}
	if got := linkOf(t, m2, "EvtsToProcess").Step; got != "MokkaStep3" {
		t.Errorf("second Marlin event count links to %s", got)
	}
	if m1.Name == m2.Name {
		t.Error("step names must be unique")
	}
	if got := b.Workflow().Packages(); !reflect.DeepEqual(got, []string{"mokka.v01", "marlin.v0111"}) {
		t.Errorf("packages = %v", got)
	}

	// An explicit producer overrides the nearest one.
	explicit := marlin
	explicit.InputFrom = "MokkaStep1"
	m3, err := b.AddMarlin(explicit)
	if err != nil {
		t.Fatal(err)
	}
	if got := linkOf(t, m3, "inputSlcio").Step; got != "MokkaStep1" {
		t.Errorf("explicit InputFrom links to %s", got)
	}
	if got := linkOf(t, m3, "EvtsToProcess").Step; got != "MokkaStep1" {
		t.Errorf("event count should follow InputFrom, got %s", got)
	}
}

func TestInputFrom_WrongKind(t *testing.T) {
	b := newTestBuilder(t, "geom.steer", "reco.xml", "gear.xml")
	b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(10)})
	b.AddMarlin(MarlinOptions{Version: "v0111", XMLFile: "reco.xml"})

	_, err := b.AddMarlin(MarlinOptions{Version: "v0111", XMLFile: "reco.xml", InputFrom: "MarlinStep2"})
	if !model.IsCode(err, model.ErrUnresolvedLink) {
		t.Fatalf("err = %v, want UNRESOLVED_LINK", err)
	}
	_, err = b.AddMarlin(MarlinOptions{Version: "v0111", XMLFile: "reco.xml", InputFrom: "MokkaStep9"})
	if !model.IsCode(err, model.ErrUnresolvedLink) {
		t.Fatalf("err = %v, want UNRESOLVED_LINK", err)
	}
	if b.StepCount() != 2 {
		t.Errorf("StepCount = %d, want 2", b.StepCount())
	}
}

func TestSLICChain_IndependentProducers(t *testing.T) {
	b := newTestBuilder(t, "slic.mac", "lcsim.xml", "post.xml")
	slic, err := b.AddSLIC(SLICOptions{Version: "v2r8p4", MacFile: "slic.mac", DetectorModel: "LFN:/ilc/models/clic_sid_cdr.zip", NumberOfEvents: intp(50)})
	if err != nil {
		t.Fatalf("AddSLIC: %v", err)
	}
	if got := literalOf(t, slic, "detectorModel"); got != "clic_sid_cdr" {
		t.Errorf("detectorModel = %v", got)
	}

	lcsim, err := b.AddLCSIM(LCSIMOptions{Version: "1.15", XMLFile: "lcsim.xml"})
	if err != nil {
		t.Fatalf("AddLCSIM: %v", err)
	}
	if got := linkOf(t, lcsim, "inputSlcio"); got.Step != slic.Name {
		t.Errorf("LCSIM input = %v", got)
	}

	pandora, err := b.AddSLICPandora(SLICPandoraOptions{Version: "V01"})
	if err != nil {
		t.Fatalf("AddSLICPandora: %v", err)
	}
	if got := linkOf(t, pandora, "DetectorXML"); got != (model.Link{Step: slic.Name, Param: "detectorModel"}) {
		t.Errorf("DetectorXML = %v", got)
	}
	if got := linkOf(t, pandora, "inputSlcio"); got.Step != lcsim.Name {
		t.Errorf("SLICPandora input = %v", got)
	}

	// Second LCSIM reads the SLICPandora output but the event count of SLIC.
	post, err := b.AddLCSIM(LCSIMOptions{Version: "1.15", XMLFile: "post.xml"})
	if err != nil {
		t.Fatal(err)
	}
	if got := linkOf(t, post, "inputSlcio"); got != (model.Link{Step: pandora.Name, Param: "outputFile"}) {
		t.Errorf("post LCSIM input = %v", got)
	}
	if got := linkOf(t, post, "EvtsToProcess"); got != (model.Link{Step: slic.Name, Param: "numberOfEvents"}) {
		t.Errorf("post LCSIM events = %v", got)
	}
}

func TestAddSLIC_Underspecified(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.AddSLIC(SLICOptions{Version: "v2r8p4", NumberOfEvents: intp(5)})
	if !model.IsCode(err, model.ErrUnderspecifiedStep) {
		t.Fatalf("err = %v, want UNDERSPECIFIED_STEP", err)
	}
}

func TestAddSLICPandora_NoGeometry(t *testing.T) {
	b := newTestBuilder(t, "in.slcio")
	_, err := b.AddSLICPandora(SLICPandoraOptions{Version: "V01", InputFiles: []string{"in.slcio"}})
	if !model.IsCode(err, model.ErrUnresolvedLink) {
		t.Fatalf("err = %v, want UNRESOLVED_LINK", err)
	}
}

func TestStagedInput(t *testing.T) {
	b := newTestBuilder(t, "reco.xml", "gear.xml")
	_, err := b.AddMarlin(MarlinOptions{Version: "v1", XMLFile: "reco.xml", GearFile: "gear.xml", InputFiles: []string{"srm"}})
	if !model.IsCode(err, model.ErrUnresolvedLink) {
		t.Fatalf("err = %v, want UNRESOLVED_LINK without a GetSRM step", err)
	}

	if _, err := b.AddSRMRetrieval(SRMOptions{Files: []SRMFile{
		{File: "srm://srm-ilc.cern.ch/ilc/a.slcio", Site: "CERN-SRM"},
		{File: "srm://srm-ilc.cern.ch/ilc/b.slcio", Site: "CERN-SRM"},
	}}); err != nil {
		t.Fatal(err)
	}
	s, err := b.AddMarlin(MarlinOptions{Version: "v1", XMLFile: "reco.xml", GearFile: "gear.xml", InputFiles: []string{"srm"}})
	if err != nil {
		t.Fatalf("AddMarlin: %v", err)
	}
	got := literalOf(t, s, "inputSlcio")
	if !reflect.DeepEqual(got, []string{"srm://srm-ilc.cern.ch/ilc/a.slcio"}) {
		t.Errorf("inputSlcio = %v", got)
	}
}

func TestParseSRMFiles(t *testing.T) {
	in := "{'file': '/b/second', 'site': 'X'};{'file': '/a/first', 'site': 'Y'}; "
	got, err := ParseSRMFiles(in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"/b/second", "/a/first"}) {
		t.Errorf("files = %v (declaration order must be kept)", got)
	}
	if _, err := ParseSRMFiles("{'site': 'X'}"); err == nil {
		t.Error("expected error for record without file")
	}
	if _, err := ParseSRMFiles("not a record"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := ParseSRMFiles(`[{"site": "X"}]`); err == nil {
		t.Error("expected error for encoded record without file")
	}
}

func TestParseSRMFiles_Quoting(t *testing.T) {
	names := []string{"/ilc/user/o'brien/a.slcio", "/ilc/a;b.slcio", `/ilc/q"uo\te.slcio`}
	b := newTestBuilder(t, "reco.xml", "gear.xml")
	var recs []SRMFile
	for _, n := range names {
		recs = append(recs, SRMFile{File: n, Site: "CERN-SRM"})
	}
	s, err := b.AddSRMRetrieval(SRMOptions{Files: recs})
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := s.LiteralValue("srmfiles")
	got, err := ParseSRMFiles(raw.(string))
	if err != nil {
		t.Fatalf("ParseSRMFiles: %v", err)
	}
	if !reflect.DeepEqual(got, names) {
		t.Errorf("files = %q, want %q", got, names)
	}

	m, err := b.AddMarlin(MarlinOptions{Version: "v1", XMLFile: "reco.xml", GearFile: "gear.xml", InputFiles: []string{"srm"}})
	if err != nil {
		t.Fatalf("AddMarlin: %v", err)
	}
	if in := literalOf(t, m, "inputSlcio"); !reflect.DeepEqual(in, []string{names[0]}) {
		t.Errorf("inputSlcio = %v", in)
	}
}

func TestManifestDeduplicates(t *testing.T) {
	b := newTestBuilder(t, "geom.steer")
	o := MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(1)}
	b.AddMokka(o)
	b.AddMokka(o)
	if got := b.Workflow().SoftwarePackages; got != "mokka.v01" {
		t.Errorf("SoftwarePackages = %q", got)
	}
}

func TestOutputSandbox(t *testing.T) {
	b := newTestBuilder(t, "geom.steer")
	b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(1), OutputFile: "sim.slcio", LogFile: "mokka.log"})
	b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(1), OutputFile: "sim2.slcio", LogFile: "mokka2.log", LogInOutputData: true})
	want := []string{"sim.slcio", "mokka.log", "sim2.slcio"}
	if got := b.Workflow().OutputSandbox; !reflect.DeepEqual(got, want) {
		t.Errorf("OutputSandbox = %v, want %v", got, want)
	}
}

func TestAddWhizard_ProcessList(t *testing.T) {
	pl := processlist.New()
	pl.Update(map[string]model.Process{
		"ee_h_mumu": {TarBallCSPath: "/ilc/prod/software/whizard_SM_1.95.tgz", InFile: "whizard.template.in"},
	})
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "geom.steer"), nil, 0o644)
	b := NewBuilder("gen", WithProcessList(pl), WithBaseDir(dir))

	w, err := b.AddWhizard(WhizardOptions{Process: "ee_h_mumu", NumberOfEvents: intp(200)})
	if err != nil {
		t.Fatalf("AddWhizard: %v", err)
	}
	if got := literalOf(t, w, "applicationVersion"); got != "SM_1.95" {
		t.Errorf("version = %v", got)
	}
	if got := literalOf(t, w, "InputFile"); got != "whizard.template.in" {
		t.Errorf("InputFile = %v", got)
	}

	m, err := b.AddMokka(MokkaOptions{Version: "v07", SteeringFile: "geom.steer"})
	if err != nil {
		t.Fatalf("AddMokka after Whizard: %v", err)
	}
	if got := linkOf(t, m, "inputGenfile"); got != (model.Link{Step: w.Name, Param: "outputFile"}) {
		t.Errorf("inputGenfile = %v", got)
	}
	if got := linkOf(t, m, "numberOfEvents"); got != (model.Link{Step: w.Name, Param: "NbOfEvts"}) {
		t.Errorf("numberOfEvents = %v", got)
	}

	if _, err := b.AddWhizard(WhizardOptions{Process: "unknown", NumberOfEvents: intp(1)}); !model.IsCode(err, model.ErrMissingInputFile) {
		t.Errorf("unknown process err = %v", err)
	}
	if _, err := b.AddWhizard(WhizardOptions{Process: "ee_h_mumu"}); !model.IsCode(err, model.ErrUnderspecifiedStep) {
		t.Errorf("no events err = %v", err)
	}
}

func TestAddWhizard_LumiLeavesCountUnset(t *testing.T) {
	b := newTestBuilder(t, "whizard.in", "geom.steer", "run.mac")
	w, err := b.AddWhizard(WhizardOptions{Version: "SM_1.95", InFile: "whizard.in", Lumi: 100})
	if err != nil {
		t.Fatalf("AddWhizard: %v", err)
	}
	if p := w.Param("NbOfEvts"); p.Value != nil {
		t.Errorf("NbOfEvts bound to %+v, want unset", p.Value)
	}

	_, err = b.AddMokka(MokkaOptions{Version: "v07", SteeringFile: "geom.steer"})
	if !model.IsCode(err, model.ErrUnderspecifiedStep) {
		t.Fatalf("err = %v, want UNDERSPECIFIED_STEP", err)
	}
	if b.StepCount() != 1 {
		t.Errorf("StepCount = %d after a rejected add", b.StepCount())
	}

	m, err := b.AddMokka(MokkaOptions{Version: "v07", SteeringFile: "geom.steer", MacFile: "run.mac"})
	if err != nil {
		t.Fatalf("AddMokka with macro: %v", err)
	}
	if p := m.Param("numberOfEvents"); p.Value != nil {
		t.Errorf("numberOfEvents = %+v, want no link to an unset count", p.Value)
	}
	if got := linkOf(t, m, "inputGenfile"); got.Step != w.Name {
		t.Errorf("inputGenfile = %v", got)
	}
}

func TestWhizardVersion(t *testing.T) {
	tests := map[string]string{
		"/ilc/whizard_SM_1.95.tgz": "SM_1.95",
		"whizard1.95.tar.gz":       "1.95",
		"gen.tgz":                  "gen",
	}
	for in, want := range tests {
		if got := WhizardVersion(in); got != want {
			t.Errorf("WhizardVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddRootApp_Kind(t *testing.T) {
	b := newTestBuilder(t, "ana.C", "ana.exe")
	mac, err := b.AddRootApp(RootOptions{Version: "5.26", Script: "ana.C"})
	if err != nil {
		t.Fatal(err)
	}
	exe, err := b.AddRootApp(RootOptions{Version: "5.26", Script: "ana.exe"})
	if err != nil {
		t.Fatal(err)
	}
	if mac.Kind != model.KindRootMacro || exe.Kind != model.KindRootExecutable {
		t.Errorf("kinds = %s, %s", mac.Kind, exe.Kind)
	}
	if got := b.Workflow().SoftwarePackages; got != "root.5.26" {
		t.Errorf("SoftwarePackages = %q", got)
	}
}

func TestSetOutputData(t *testing.T) {
	b := NewBuilder("out")
	if err := b.SetOutputData([]string{"LFN:rec.slcio"}, nil, "/prod/rec"); err != nil {
		t.Fatal(err)
	}
	wf := b.Workflow()
	if wf.OutputPath != "prod/rec" || wf.OutputSE[0] != DefaultOutputSE || wf.OutputData[0] != "rec.slcio" {
		t.Errorf("output = %v %v %v", wf.OutputData, wf.OutputSE, wf.OutputPath)
	}
	if err := b.SetOutputData([]string{"a"}, nil, "/ilc/user/j/joe/x"); !model.IsCode(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want INVALID_ARGUMENT", err)
	}
}

func TestBuildDAG(t *testing.T) {
	b := newTestBuilder(t, "geom.steer", "reco.xml")
	b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(1)})
	b.AddMarlin(MarlinOptions{Version: "v1", XMLFile: "reco.xml"})

	order, err := b.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"MokkaStep1", "MarlinStep2"}) {
		t.Errorf("order = %v", order)
	}

	wf := b.Workflow()
	wf.Steps[1].Param("inputSlcio").Value = model.LinkTo("MokkaStep1", "nosuch")
	if _, err := BuildDAG(wf); !model.IsCode(err, model.ErrUnresolvedLink) {
		t.Errorf("err = %v, want UNRESOLVED_LINK", err)
	}
	wf.Steps[0].Param("inputGenfile").Value = model.LinkTo("MarlinStep2", "outputFile")
	wf.Steps[1].Param("inputSlcio").Value = model.LinkTo("MokkaStep1", "outputFile")
	if _, err := BuildDAG(wf); !model.IsCode(err, model.ErrUnresolvedLink) {
		t.Errorf("forward link err = %v, want UNRESOLVED_LINK", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	b := newTestBuilder(t, "geom.steer", "reco.xml")
	b.AddMokka(MokkaOptions{Version: "v01", SteeringFile: "geom.steer", NumberOfEvents: intp(0), MacFile: ""})
	b.AddMarlin(MarlinOptions{Version: "v1", XMLFile: "reco.xml"})

	for _, format := range []string{"yaml", "json"} {
		data, err := Marshal(b.Workflow(), format)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		wf, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("%s: Unmarshal: %v", format, err)
		}
		if len(wf.Steps) != 2 || wf.SoftwarePackages != "mokka.v01;marlin.v1" {
			t.Errorf("%s: decoded %+v", format, wf)
		}
		if n, ok := model.AsInt(literalOf(t, wf.Steps[0], "numberOfEvents")); !ok || n != 0 {
			t.Errorf("%s: zero literal lost: %v", format, n)
		}
		if got := linkOf(t, wf.Steps[1], "inputSlcio"); got.Step != "MokkaStep1" {
			t.Errorf("%s: link lost: %v", format, got)
		}
	}
}
