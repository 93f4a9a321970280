package workflow

import (
	"fmt"
	"sort"

	"github.com/me/ilcdirac/pkg/model"
)

// argReader type-checks a loosely typed argument map. The first failure is
// kept; later reads become no-ops.
type argReader struct {
	op   string
	args map[string]any
	used map[string]bool
	err  error
}

func newArgReader(op string, args map[string]any) *argReader {
	return &argReader{op: op, args: args, used: make(map[string]bool)}
}

func (r *argReader) fail(name, want string, got any) {
	if r.err != nil {
		return
	}
	r.err = model.NewJobError(model.ErrInvalidArgument, r.op,
		fmt.Sprintf("%s: expected %s, got %T", name, want, got), r.args)
}

func (r *argReader) lookup(name string) (any, bool) {
	r.used[name] = true
	v, ok := r.args[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *argReader) str(name string) string {
	v, ok := r.lookup(name)
	if !ok {
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		r.fail(name, "string", v)
	}
	return s
}

func (r *argReader) integer(name string) int {
	p := r.intPtr(name)
	if p == nil {
		return 0
	}
	return *p
}

func (r *argReader) intPtr(name string) *int {
	v, ok := r.lookup(name)
	if !ok {
		return nil
	}
	switch v.(type) {
	case int, int64, float64:
		if n, ok := model.AsInt(v); ok {
			return &n
		}
	}
	r.fail(name, "int", v)
	return nil
}

func (r *argReader) boolean(name string) bool {
	v, ok := r.lookup(name)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		r.fail(name, "bool", v)
	}
	return b
}

// strList accepts a single string or a list of strings.
func (r *argReader) strList(name string) []string {
	v, ok := r.lookup(name)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, isStr := item.(string)
			if !isStr {
				r.fail(name, "string or list of strings", item)
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	r.fail(name, "string or list of strings", v)
	return nil
}

func (r *argReader) srmFiles(name string) []SRMFile {
	v, ok := r.lookup(name)
	if !ok {
		return nil
	}
	items, isList := v.([]any)
	if !isList {
		r.fail(name, "list of file records", v)
		return nil
	}
	out := make([]SRMFile, 0, len(items))
	for _, item := range items {
		rec, isMap := item.(map[string]any)
		if !isMap {
			r.fail(name, "file record", item)
			return nil
		}
		file, _ := rec["file"].(string)
		site, _ := rec["site"].(string)
		out = append(out, SRMFile{File: file, Site: site})
	}
	return out
}

// done reports the first type error, or an unknown argument name.
func (r *argReader) done() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for k := range r.args {
		if !r.used[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return model.NewJobError(model.ErrInvalidArgument, r.op,
			fmt.Sprintf("unknown parameter %s", unknown[0]), r.args)
	}
	return nil
}

// Add appends a step of kind from a loosely typed argument map, as read from
// a job file. Every argument is type-checked before the step is assembled.
func (b *Builder) Add(kind model.StepKind, args map[string]any) (*model.Step, error) {
	r := newArgReader("Add"+string(kind), args)

	switch kind {
	case model.KindMokka:
		o := MokkaOptions{
			Version: r.str("version"), SteeringFile: r.str("steeringFile"),
			InputFile: r.str("inputFile"), InputFrom: r.str("inputFrom"),
			MacFile: r.str("macFile"), DetectorModel: r.str("detectorModel"),
			NumberOfEvents: r.intPtr("numberOfEvents"), EventsFrom: r.str("eventsFrom"),
			StartFrom: r.integer("startFrom"), RandomSeed: r.integer("randomSeed"),
			DBSlice: r.str("dbSlice"), OutputFile: r.str("outputFile"), LogFile: r.str("logFile"),
			Debug: r.boolean("debug"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddMokka(o)
	case model.KindMarlin:
		o := MarlinOptions{
			Version: r.str("version"), XMLFile: r.str("xmlFile"), GearFile: r.str("gearFile"),
			InputFiles: r.strList("inputFiles"), InputFrom: r.str("inputFrom"),
			NumberOfEvents: r.intPtr("numberOfEvents"), EventsFrom: r.str("eventsFrom"),
			OutputFile: r.str("outputFile"), LogFile: r.str("logFile"),
			Debug: r.boolean("debug"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddMarlin(o)
	case model.KindSLIC:
		o := SLICOptions{
			Version: r.str("version"), MacFile: r.str("macFile"),
			InputFile: r.str("inputFile"), InputFrom: r.str("inputFrom"),
			DetectorModel: r.str("detectorModel"),
			NumberOfEvents: r.intPtr("numberOfEvents"), EventsFrom: r.str("eventsFrom"),
			StartFrom: r.integer("startFrom"), RandomSeed: r.integer("randomSeed"),
			OutputFile: r.str("outputFile"), LogFile: r.str("logFile"),
			Debug: r.boolean("debug"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddSLIC(o)
	case model.KindLCSIM:
		o := LCSIMOptions{
			Version: r.str("version"), XMLFile: r.str("xmlFile"),
			InputFiles: r.strList("inputFiles"), InputFrom: r.str("inputFrom"),
			AliasProperties: r.str("aliasProperties"),
			NumberOfEvents: r.intPtr("numberOfEvents"), EventsFrom: r.str("eventsFrom"),
			OutputFile: r.str("outputFile"), LogFile: r.str("logFile"),
			Debug: r.boolean("debug"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddLCSIM(o)
	case model.KindSLICPandora:
		o := SLICPandoraOptions{
			Version: r.str("version"), DetectorXML: r.str("detectorXML"), DetectorFrom: r.str("detectorFrom"),
			PandoraSettings: r.str("pandoraSettings"),
			InputFiles: r.strList("inputFiles"), InputFrom: r.str("inputFrom"),
			NumberOfEvents: r.intPtr("numberOfEvents"), EventsFrom: r.str("eventsFrom"),
			OutputFile: r.str("outputFile"), LogFile: r.str("logFile"),
			Debug: r.boolean("debug"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddSLICPandora(o)
	case model.KindWhizard:
		o := WhizardOptions{
			Process: r.str("process"), Version: r.str("version"), InFile: r.str("inFile"),
			NumberOfEvents: r.intPtr("numberOfEvents"), Lumi: r.integer("lumi"),
			RandomSeed: r.integer("randomSeed"), OutputFile: r.str("outputFile"), LogFile: r.str("logFile"),
			Debug: r.boolean("debug"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddWhizard(o)
	case model.KindRootMacro, model.KindRootExecutable:
		o := RootOptions{
			Version: r.str("version"), Script: r.str("script"), Arguments: r.str("arguments"),
			LogFile: r.str("logFile"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddRootApp(o)
	case model.KindApplicationScript:
		o := ApplicationScriptOptions{
			AppName: r.str("appName"), Version: r.str("version"), Script: r.str("script"),
			Arguments: r.str("arguments"), LogFile: r.str("logFile"),
			LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddApplicationScript(o)
	case model.KindGetSRM:
		o := SRMOptions{Files: r.srmFiles("files")}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddSRMRetrieval(o)
	case model.KindStdHepConverter:
		o := StdHepConverterOptions{
			Version: r.str("version"), LogFile: r.str("logFile"),
			Debug: r.boolean("debug"), LogInOutputData: r.boolean("logInOutputData"),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b.AddStdHepConverter(o)
	}
	return nil, model.NewJobError(model.ErrInvalidArgument, "Add", fmt.Sprintf("unknown step kind %s", kind), args)
}
