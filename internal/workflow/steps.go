package workflow

import (
	"path/filepath"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// MokkaOptions describes a Mokka simulation step.
type MokkaOptions struct {
	Version         string
	SteeringFile    string
	InputFile       string // generator file, LFN, or "srm"; empty links to a Whizard step
	InputFrom       string
	MacFile         string
	DetectorModel   string
	NumberOfEvents  *int // nil inherits from the generator step
	EventsFrom      string
	StartFrom       int
	RandomSeed      int
	DBSlice         string
	OutputFile      string
	LogFile         string
	Debug           bool
	LogInOutputData bool
}

// MarlinOptions describes a Marlin reconstruction step.
type MarlinOptions struct {
	Version         string
	XMLFile         string
	GearFile        string
	InputFiles      []string // empty links to a Mokka step
	InputFrom       string
	NumberOfEvents  *int
	EventsFrom      string
	OutputFile      string
	LogFile         string
	Debug           bool
	LogInOutputData bool
}

// SLICOptions describes a SLIC simulation step.
type SLICOptions struct {
	Version         string
	MacFile         string
	InputFile       string
	InputFrom       string
	DetectorModel   string
	NumberOfEvents  *int
	EventsFrom      string
	StartFrom       int
	RandomSeed      int
	OutputFile      string
	LogFile         string
	Debug           bool
	LogInOutputData bool
}

// LCSIMOptions describes an LCSIM reconstruction step.
type LCSIMOptions struct {
	Version         string
	XMLFile         string
	InputFiles      []string // empty links to a SLICPandora or SLIC step
	InputFrom       string
	AliasProperties string
	NumberOfEvents  *int
	EventsFrom      string
	OutputFile      string
	LogFile         string
	Debug           bool
	LogInOutputData bool
}

// SLICPandoraOptions describes a SLICPandora reconstruction step.
type SLICPandoraOptions struct {
	Version         string
	DetectorXML     string // model name, local file or LFN; empty links to a SLIC step
	DetectorFrom    string
	PandoraSettings string
	InputFiles      []string // empty links to an LCSIM step
	InputFrom       string
	NumberOfEvents  *int
	EventsFrom      string
	OutputFile      string
	LogFile         string
	Debug           bool
	LogInOutputData bool
}

// generatorFile binds a single generator input: the staging sentinel, a
// literal file, or a link to the nearest (or named) Whizard step.
func (b *Builder) generatorFile(d *draft, param, file, from string) (bool, error) {
	switch {
	case IsStaged(file):
		f, err := b.stagedFile(d)
		if err != nil {
			return false, err
		}
		d.literal(param, f)
		return true, nil
	case file != "":
		if err := b.checkInputFile(d, param, file); err != nil {
			return false, err
		}
		d.literal(param, file)
		return true, nil
	}
	v, err := b.producer(d, from, model.CapEventCollection, from != "", model.KindWhizard)
	if err != nil || v == nil {
		return false, err
	}
	d.bind(param, v)
	return true, nil
}

// inputFiles binds an input file list: the staging sentinel, literal files,
// or a required link to a producer of one of kinds.
func (b *Builder) inputFiles(d *draft, param string, files []string, from string, kinds ...model.StepKind) error {
	if len(files) == 1 && IsStaged(files[0]) {
		f, err := b.stagedFile(d)
		if err != nil {
			return err
		}
		d.literal(param, []string{f})
		return nil
	}
	if len(files) > 0 {
		for _, f := range files {
			if err := b.checkInputFile(d, param, f); err != nil {
				return err
			}
		}
		d.literal(param, append([]string(nil), files...))
		return nil
	}
	v, err := b.producer(d, from, model.CapEventCollection, true, kinds...)
	if err != nil {
		return err
	}
	d.bind(param, v)
	return nil
}

// eventCount binds an explicit count or links it to a producer. It reports
// whether anything was bound. A producer that never set its own count, such
// as Whizard driven by luminosity, counts as no producer.
func (b *Builder) eventCount(d *draft, param string, n *int, from string, kinds ...model.StepKind) (bool, error) {
	if n != nil {
		d.literal(param, *n)
		return true, nil
	}
	v, err := b.producer(d, from, model.CapEventCount, from != "", kinds...)
	if err != nil || v == nil {
		return false, err
	}
	if !b.bound(v.Link) {
		return false, nil
	}
	d.bind(param, v)
	return true, nil
}

// bound reports whether the linked parameter carries a value.
func (b *Builder) bound(l *model.Link) bool {
	s := b.wf.Step(l.Step)
	if s == nil {
		return false
	}
	p := s.Param(l.Param)
	return p != nil && p.Value != nil
}

// AddMokka appends a Mokka simulation step.
func (b *Builder) AddMokka(o MokkaOptions) (*model.Step, error) {
	d := b.newDraft(model.KindMokka, "AddMokka", argsOf(o))
	if err := requireVersion(d, o.Version); err != nil {
		return nil, err
	}
	if o.SteeringFile == "" {
		return nil, d.fail(model.ErrInvalidArgument, "steeringFile must be a non-empty string")
	}
	if err := b.checkInputFile(d, "steeringFile", o.SteeringFile); err != nil {
		return nil, err
	}
	d.literal("steeringFile", o.SteeringFile)

	if o.MacFile != "" {
		if err := b.checkInputFile(d, "macFile", o.MacFile); err != nil {
			return nil, err
		}
		d.literal("macFile", o.MacFile)
	}
	if o.DBSlice != "" {
		if err := b.checkInputFile(d, "dbSlice", o.DBSlice); err != nil {
			return nil, err
		}
		d.literal("dbSlice", o.DBSlice)
	}
	if _, err := b.generatorFile(d, "inputGenfile", o.InputFile, o.InputFrom); err != nil {
		return nil, err
	}
	from := b.eventsFrom(o.EventsFrom, o.InputFrom, []model.StepKind{model.KindWhizard})
	bound, err := b.eventCount(d, "numberOfEvents", o.NumberOfEvents, from, model.KindWhizard)
	if err != nil {
		return nil, err
	}
	if !bound && o.MacFile == "" {
		return nil, d.fail(model.ErrUnderspecifiedStep, "number of events must be given when no macro file is used")
	}

	d.literal("detectorModel", o.DetectorModel)
	d.literal("startFrom", o.StartFrom)
	d.literal("randomSeed", o.RandomSeed)
	d.application("mokka", o.Version, o.LogFile, o.OutputFile, o.Debug, o.LogInOutputData)
	return b.commit(d), nil
}

// AddMarlin appends a Marlin reconstruction step.
func (b *Builder) AddMarlin(o MarlinOptions) (*model.Step, error) {
	d := b.newDraft(model.KindMarlin, "AddMarlin", argsOf(o))
	if err := requireVersion(d, o.Version); err != nil {
		return nil, err
	}
	if o.XMLFile == "" {
		return nil, d.fail(model.ErrInvalidArgument, "xmlFile must be a non-empty string")
	}
	if err := b.checkInputFile(d, "xmlFile", o.XMLFile); err != nil {
		return nil, err
	}
	d.literal("inputXML", o.XMLFile)

	switch {
	case o.GearFile != "":
		if err := b.checkInputFile(d, "gearFile", o.GearFile); err != nil {
			return nil, err
		}
		d.literal("inputGEAR", o.GearFile)
	default:
		// Mokka writes its geometry to GearOutput.xml in the job directory.
		if s, _ := Nearest(b.wf, model.CapEventCollection, model.KindMokka); s == nil {
			return nil, d.fail(model.ErrUnresolvedLink, "no gear file given and no Mokka step is defined before")
		}
		d.literal("inputGEAR", "GearOutput.xml")
	}

	if err := b.inputFiles(d, "inputSlcio", o.InputFiles, o.InputFrom, model.KindMokka); err != nil {
		return nil, err
	}
	from := b.eventsFrom(o.EventsFrom, o.InputFrom, []model.StepKind{model.KindMokka})
	if _, err := b.eventCount(d, "EvtsToProcess", o.NumberOfEvents, from, model.KindMokka); err != nil {
		return nil, err
	}
	d.application("marlin", o.Version, o.LogFile, o.OutputFile, o.Debug, o.LogInOutputData)
	return b.commit(d), nil
}

// AddSLIC appends a SLIC simulation step.
func (b *Builder) AddSLIC(o SLICOptions) (*model.Step, error) {
	d := b.newDraft(model.KindSLIC, "AddSLIC", argsOf(o))
	if err := requireVersion(d, o.Version); err != nil {
		return nil, err
	}
	if o.MacFile != "" {
		if err := b.checkInputFile(d, "macFile", o.MacFile); err != nil {
			return nil, err
		}
		d.literal("inputmacFile", o.MacFile)
	}
	hasGen, err := b.generatorFile(d, "stdhepFile", o.InputFile, o.InputFrom)
	if err != nil {
		return nil, err
	}
	if !hasGen && o.MacFile == "" {
		return nil, d.fail(model.ErrUnderspecifiedStep, "neither a generator file nor a macro file was given")
	}

	if o.DetectorModel != "" {
		if isLFN(o.DetectorModel) {
			d.inputSandbox = append(d.inputSandbox, o.DetectorModel)
		}
		d.literal("detectorModel", strings.TrimSuffix(filepath.Base(o.DetectorModel), ".zip"))
	}
	from := b.eventsFrom(o.EventsFrom, o.InputFrom, []model.StepKind{model.KindWhizard})
	if _, err := b.eventCount(d, "numberOfEvents", o.NumberOfEvents, from, model.KindWhizard); err != nil {
		return nil, err
	}
	d.literal("startFrom", o.StartFrom)
	d.literal("randomSeed", o.RandomSeed)
	d.application("slic", o.Version, o.LogFile, o.OutputFile, o.Debug, o.LogInOutputData)
	return b.commit(d), nil
}

// AddLCSIM appends an LCSIM reconstruction step.
func (b *Builder) AddLCSIM(o LCSIMOptions) (*model.Step, error) {
	d := b.newDraft(model.KindLCSIM, "AddLCSIM", argsOf(o))
	if err := requireVersion(d, o.Version); err != nil {
		return nil, err
	}
	if o.XMLFile == "" {
		return nil, d.fail(model.ErrInvalidArgument, "xmlFile must be a non-empty string")
	}
	if err := b.checkInputFile(d, "xmlFile", o.XMLFile); err != nil {
		return nil, err
	}
	d.literal("inputXML", o.XMLFile)

	if o.AliasProperties != "" {
		if err := b.checkInputFile(d, "aliasProperties", o.AliasProperties); err != nil {
			return nil, err
		}
		d.literal("aliasproperties", o.AliasProperties)
	}
	if err := b.inputFiles(d, "inputSlcio", o.InputFiles, o.InputFrom, model.KindSLICPandora, model.KindSLIC); err != nil {
		return nil, err
	}
	from := b.eventsFrom(o.EventsFrom, o.InputFrom, []model.StepKind{model.KindSLIC})
	if _, err := b.eventCount(d, "EvtsToProcess", o.NumberOfEvents, from, model.KindSLIC); err != nil {
		return nil, err
	}
	d.application("lcsim", o.Version, o.LogFile, o.OutputFile, o.Debug, o.LogInOutputData)
	return b.commit(d), nil
}

// AddSLICPandora appends a SLICPandora reconstruction step.
func (b *Builder) AddSLICPandora(o SLICPandoraOptions) (*model.Step, error) {
	d := b.newDraft(model.KindSLICPandora, "AddSLICPandora", argsOf(o))
	if err := requireVersion(d, o.Version); err != nil {
		return nil, err
	}

	switch {
	case isLFN(o.DetectorXML):
		d.inputSandbox = append(d.inputSandbox, o.DetectorXML)
		d.literal("DetectorXML", o.DetectorXML)
	case o.DetectorXML != "":
		// Either a local geometry file or a model name downloaded on the worker.
		if strings.HasSuffix(o.DetectorXML, ".xml") {
			if err := b.checkInputFile(d, "detectorXML", o.DetectorXML); err != nil {
				return nil, err
			}
		}
		d.literal("DetectorXML", o.DetectorXML)
	default:
		v, err := b.producer(d, o.DetectorFrom, model.CapDetectorGeometry, true, model.KindSLIC)
		if err != nil {
			return nil, err
		}
		d.bind("DetectorXML", v)
	}

	if o.PandoraSettings != "" {
		if err := b.checkInputFile(d, "pandoraSettings", o.PandoraSettings); err != nil {
			return nil, err
		}
		d.literal("PandoraSettings", o.PandoraSettings)
	}
	if err := b.inputFiles(d, "inputSlcio", o.InputFiles, o.InputFrom, model.KindLCSIM); err != nil {
		return nil, err
	}
	from := b.eventsFrom(o.EventsFrom, o.InputFrom, []model.StepKind{model.KindLCSIM})
	if _, err := b.eventCount(d, "EvtsToProcess", o.NumberOfEvents, from, model.KindLCSIM); err != nil {
		return nil, err
	}
	d.application("slicpandora", o.Version, o.LogFile, o.OutputFile, o.Debug, o.LogInOutputData)
	return b.commit(d), nil
}
