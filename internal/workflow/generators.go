package workflow

import (
	"path"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// WhizardOptions describes a Whizard generation step. Either Process (looked
// up in the process list) or Version together with InFile is required.
type WhizardOptions struct {
	Process         string
	Version         string
	InFile          string
	NumberOfEvents  *int
	Lumi            int
	RandomSeed      int
	OutputFile      string
	LogFile         string
	Debug           bool
	LogInOutputData bool
}

// RootOptions describes a ROOT analysis step.
type RootOptions struct {
	Version         string
	Script          string
	Arguments       string
	LogFile         string
	LogInOutputData bool
}

// ApplicationScriptOptions describes a user script step.
type ApplicationScriptOptions struct {
	AppName         string
	Version         string
	Script          string
	Arguments       string
	LogFile         string
	LogInOutputData bool
}

// SRMOptions describes a GetSRM retrieval step.
type SRMOptions struct {
	Files []SRMFile
}

// StdHepConverterOptions describes a StdHep to LCIO conversion step.
type StdHepConverterOptions struct {
	Version         string
	LogFile         string
	Debug           bool
	LogInOutputData bool
}

// WhizardVersion derives the generator version from its tarball name,
// e.g. /ilc/prod/whizard_SM_1.95.tgz gives SM_1.95.
func WhizardVersion(tarball string) string {
	v := path.Base(tarball)
	v = strings.TrimSuffix(strings.TrimSuffix(v, ".tgz"), ".tar.gz")
	v = strings.TrimPrefix(v, "whizard")
	return strings.TrimLeft(v, "_-")
}

// AddWhizard appends a Whizard generation step.
func (b *Builder) AddWhizard(o WhizardOptions) (*model.Step, error) {
	d := b.newDraft(model.KindWhizard, "AddWhizard", argsOf(o))
	version, inFile := o.Version, o.InFile

	if o.Process != "" {
		if b.processes == nil || !b.processes.OK() {
			return nil, d.fail(model.ErrInvalidArgument, "process %s requested but no process list is available", o.Process)
		}
		if !b.processes.Exists(o.Process) {
			return nil, d.fail(model.ErrMissingInputFile, "process %s is not in the process list", o.Process)
		}
		if version == "" {
			version = WhizardVersion(b.processes.GetCSPath(o.Process))
		}
		if inFile == "" {
			inFile = b.processes.GetInFile(o.Process)
		} else if err := b.checkInputFile(d, "inFile", inFile); err != nil {
			return nil, err
		}
	} else {
		if version == "" || inFile == "" {
			return nil, d.fail(model.ErrUnderspecifiedStep, "either a process or a version with an input file is required")
		}
		if err := b.checkInputFile(d, "inFile", inFile); err != nil {
			return nil, err
		}
	}
	if err := requireVersion(d, version); err != nil {
		return nil, err
	}

	if o.NumberOfEvents == nil && o.Lumi <= 0 {
		return nil, d.fail(model.ErrUnderspecifiedStep, "number of events or luminosity must be given")
	}
	if o.NumberOfEvents != nil {
		d.literal("NbOfEvts", *o.NumberOfEvents)
	}
	d.literal("Lumi", o.Lumi)
	d.literal("InputFile", inFile)
	d.literal("EvtType", o.Process)
	d.literal("RandomSeed", o.RandomSeed)
	d.application("whizard", version, o.LogFile, o.OutputFile, o.Debug, o.LogInOutputData)
	return b.commit(d), nil
}

// IsRootMacro reports whether script is run by the ROOT interpreter rather
// than executed directly.
func IsRootMacro(script string) bool {
	switch path.Ext(script) {
	case ".C", ".cc", ".cxx", ".c":
		return true
	}
	return false
}

// AddRootApp appends a ROOT macro or ROOT executable step depending on the
// script extension.
func (b *Builder) AddRootApp(o RootOptions) (*model.Step, error) {
	kind := model.KindRootExecutable
	if IsRootMacro(o.Script) {
		kind = model.KindRootMacro
	}
	d := b.newDraft(kind, "AddRootApp", argsOf(o))
	if err := requireVersion(d, o.Version); err != nil {
		return nil, err
	}
	if o.Script == "" {
		return nil, d.fail(model.ErrInvalidArgument, "script must be a non-empty string")
	}
	if err := b.checkInputFile(d, "script", o.Script); err != nil {
		return nil, err
	}
	d.literal("script", o.Script)
	d.literal("arguments", o.Arguments)
	d.application("root", o.Version, o.LogFile, "", false, o.LogInOutputData)
	return b.commit(d), nil
}

// AddApplicationScript appends a step running a user script.
func (b *Builder) AddApplicationScript(o ApplicationScriptOptions) (*model.Step, error) {
	d := b.newDraft(model.KindApplicationScript, "AddApplicationScript", argsOf(o))
	if o.Script == "" {
		return nil, d.fail(model.ErrInvalidArgument, "script must be a non-empty string")
	}
	if err := b.checkInputFile(d, "script", o.Script); err != nil {
		return nil, err
	}
	name := o.AppName
	if name == "" {
		name = path.Base(o.Script)
	}
	d.literal("applicationName", name)
	d.literal("script", o.Script)
	d.literal("arguments", o.Arguments)
	app := ""
	if o.AppName != "" {
		app = strings.ToLower(o.AppName)
	}
	d.application(app, o.Version, o.LogFile, "", false, o.LogInOutputData)
	return b.commit(d), nil
}

// AddSRMRetrieval appends a GetSRM step fetching files from storage elements.
// Later steps may use the "srm" sentinel to consume its first file.
func (b *Builder) AddSRMRetrieval(o SRMOptions) (*model.Step, error) {
	d := b.newDraft(model.KindGetSRM, "AddSRMRetrieval", argsOf(o))
	if len(o.Files) == 0 {
		return nil, d.fail(model.ErrInvalidArgument, "at least one file record is required")
	}
	for i, f := range o.Files {
		if f.File == "" {
			return nil, d.fail(model.ErrInvalidArgument, "file record %d has no file", i)
		}
	}
	recs, err := FormatSRMRecords(o.Files)
	if err != nil {
		return nil, d.fail(model.ErrInvalidArgument, "file records: %v", err)
	}
	d.literal("srmfiles", recs)
	return b.commit(d), nil
}

// AddStdHepConverter appends a step converting every StdHep file in the job
// directory to LCIO.
func (b *Builder) AddStdHepConverter(o StdHepConverterOptions) (*model.Step, error) {
	d := b.newDraft(model.KindStdHepConverter, "AddStdHepConverter", argsOf(o))
	if err := requireVersion(d, o.Version); err != nil {
		return nil, err
	}
	d.application("lcio", o.Version, o.LogFile, "", o.Debug, o.LogInOutputData)
	return b.commit(d), nil
}
