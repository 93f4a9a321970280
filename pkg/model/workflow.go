package model

import (
	"fmt"
	"strconv"
	"strings"
)

// StepKind identifies which application a Step wraps.
type StepKind string

const (
	KindMokka             StepKind = "Mokka"
	KindMarlin            StepKind = "Marlin"
	KindSLIC              StepKind = "SLIC"
	KindLCSIM             StepKind = "LCSIM"
	KindSLICPandora       StepKind = "SLICPandora"
	KindWhizard           StepKind = "Whizard"
	KindRootMacro         StepKind = "RootMacro"
	KindRootExecutable    StepKind = "RootExecutable"
	KindApplicationScript StepKind = "ApplicationScript"
	KindGetSRM            StepKind = "GetSRM"
	KindStdHepConverter   StepKind = "StdHepConverter"
)

// StepKinds lists every known step kind in declaration order.
var StepKinds = []StepKind{
	KindMokka, KindMarlin, KindSLIC, KindLCSIM, KindSLICPandora, KindWhizard,
	KindRootMacro, KindRootExecutable, KindApplicationScript, KindGetSRM, KindStdHepConverter,
}

// ParseStepKind matches a kind name case-insensitively.
func ParseStepKind(s string) (StepKind, error) {
	for _, k := range StepKinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown step kind %q", s)
}

// Role is the logical category of a step.
type Role string

const (
	RoleGeneration     Role = "generation"
	RoleSimulation     Role = "simulation"
	RoleReconstruction Role = "reconstruction"
	RoleAnalysis       Role = "analysis"
	RoleRetrieval      Role = "retrieval"
	RoleConversion     Role = "conversion"
)

// Role returns the role of a step kind.
func (k StepKind) Role() Role {
	switch k {
	case KindWhizard:
		return RoleGeneration
	case KindMokka, KindSLIC:
		return RoleSimulation
	case KindMarlin, KindLCSIM, KindSLICPandora:
		return RoleReconstruction
	case KindGetSRM:
		return RoleRetrieval
	case KindStdHepConverter:
		return RoleConversion
	}
	return RoleAnalysis
}

// Module returns the worker module name that executes steps of this kind.
func (k StepKind) Module() string {
	switch k {
	case KindRootMacro:
		return "RootMacroAnalysis"
	case KindRootExecutable:
		return "RootExecutableAnalysis"
	case KindGetSRM:
		return "GetSRMFile"
	case KindStdHepConverter:
		return "StdHepConverter"
	case KindApplicationScript:
		return "ApplicationScript"
	}
	return string(k) + "Analysis"
}

// Capability names something a step produces that later steps may link to.
type Capability string

const (
	CapEventCollection  Capability = "event-collection"
	CapEventCount       Capability = "event-count"
	CapDetectorGeometry Capability = "detector-geometry"
	CapStagedFiles      Capability = "staged-files"
)

// ValueKind tags a Value as a literal or a link.
type ValueKind string

const (
	ValueLiteral ValueKind = "literal"
	ValueLink    ValueKind = "link"
)

// Link is a deferred reference to a parameter of another step.
type Link struct {
	Step  string `json:"step" yaml:"step"`
	Param string `json:"param" yaml:"param"`
}

func (l Link) String() string {
	return l.Step + "/" + l.Param
}

// Value is either a literal or a link.
type Value struct {
	Kind    ValueKind `json:"kind" yaml:"kind"`
	Literal any       `json:"literal" yaml:"literal"`
	Link    *Link     `json:"link,omitempty" yaml:"link,omitempty"`
}

// Literal returns a literal Value.
func Literal(v any) *Value {
	return &Value{Kind: ValueLiteral, Literal: v}
}

// LinkTo returns a Value linking to param of step.
func LinkTo(step, param string) *Value {
	return &Value{Kind: ValueLink, Link: &Link{Step: step, Param: param}}
}

// IsLink reports whether v is a link.
func (v *Value) IsLink() bool {
	return v != nil && v.Kind == ValueLink && v.Link != nil
}

// ParamType is the type tag of a step parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeBool   ParamType = "bool"
	TypeList   ParamType = "list"
)

// Parameter is one entry of a step's parameter schema plus its binding.
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Default     any       `json:"default" yaml:"default"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Value       *Value    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Step is a single application invocation in a Workflow.
type Step struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       StepKind    `json:"kind" yaml:"kind"`
	Index      int         `json:"index" yaml:"index"`
	Modules    []string    `json:"modules" yaml:"modules"`
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
}

// Param returns the named parameter, or nil.
func (s *Step) Param(name string) *Parameter {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i]
		}
	}
	return nil
}

// LiteralValue returns the bound literal of name, falling back to the
// declared default. The second result is false for links and unknown names.
func (s *Step) LiteralValue(name string) (any, bool) {
	p := s.Param(name)
	if p == nil {
		return nil, false
	}
	if p.Value == nil {
		return p.Default, true
	}
	if p.Value.IsLink() {
		return nil, false
	}
	return p.Value.Literal, true
}

// Links returns the links bound on this step, in parameter order.
func (s *Step) Links() []Link {
	var out []Link
	for _, p := range s.Parameters {
		if p.Value.IsLink() {
			out = append(out, *p.Value.Link)
		}
	}
	return out
}

// Workflow is an ordered, append-only sequence of steps plus job-wide settings.
type Workflow struct {
	Name             string          `json:"name" yaml:"name"`
	Steps            []*Step         `json:"steps" yaml:"steps"`
	StepCount        int             `json:"step_count" yaml:"step_count"`
	Roles            map[Role]string `json:"roles,omitempty" yaml:"roles,omitempty"`
	SoftwarePackages string          `json:"software_packages,omitempty" yaml:"software_packages,omitempty"`
	SystemConfig     string          `json:"system_config" yaml:"system_config"`
	InputSandbox     []string        `json:"input_sandbox,omitempty" yaml:"input_sandbox,omitempty"`
	OutputSandbox    []string        `json:"output_sandbox,omitempty" yaml:"output_sandbox,omitempty"`
	InputData        []string        `json:"input_data,omitempty" yaml:"input_data,omitempty"`
	OutputData       []string        `json:"output_data,omitempty" yaml:"output_data,omitempty"`
	OutputSE         []string        `json:"output_se,omitempty" yaml:"output_se,omitempty"`
	OutputPath       string          `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	BannedSites      []string        `json:"banned_sites,omitempty" yaml:"banned_sites,omitempty"`
	IgnoreAppErrors  bool            `json:"ignore_app_errors" yaml:"ignore_app_errors"`
}

// Step returns the named step, or nil.
func (w *Workflow) Step(name string) *Step {
	for _, s := range w.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Packages splits SoftwarePackages into its tool.version tokens.
func (w *Workflow) Packages() []string {
	if w.SoftwarePackages == "" {
		return nil
	}
	return strings.Split(w.SoftwarePackages, ";")
}

// AsInt converts numeric values decoded from YAML or JSON to int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
