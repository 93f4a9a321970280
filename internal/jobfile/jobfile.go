// Package jobfile loads YAML job definitions and replays them through the
// workflow builder.
package jobfile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/me/ilcdirac/internal/workflow"
	"github.com/me/ilcdirac/pkg/model"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("jobfile.schema.json", schemaJSON)

// Definition is a job definition file.
type Definition struct {
	Name            string     `yaml:"name"`
	SystemConfig    string     `yaml:"system_config"`
	InputData       []string   `yaml:"input_data"`
	BannedSites     []string   `yaml:"banned_sites"`
	IgnoreAppErrors bool       `yaml:"ignore_app_errors"`
	Output          *Output    `yaml:"output"`
	Steps           []StepSpec `yaml:"steps"`

	// Dir is the directory of the file; relative inputs resolve against it.
	Dir string `yaml:"-"`
}

// Output declares the user output data of the job.
type Output struct {
	Files []string `yaml:"files"`
	SE    []string `yaml:"se"`
	Path  string   `yaml:"path"`
}

// StepSpec is one step: its kind and the arguments of the matching add
// operation.
type StepSpec struct {
	Kind string         `yaml:"kind"`
	Args map[string]any `yaml:"args"`
}

// Load reads and validates the job definition at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Dir = filepath.Dir(path)
	return def, nil
}

// Parse validates data against the job file schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	// The schema validator works on JSON values.
	jsonData, err := json.Marshal(toJSONCompatible(doc))
	if err != nil {
		return nil, fmt.Errorf("convert job file: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonData, &jsonDoc); err != nil {
		return nil, fmt.Errorf("convert job file: %w", err)
	}
	if err := schema.Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("invalid job file: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode job file: %w", err)
	}
	return &def, nil
}

// toJSONCompatible converts the map[any]any nodes yaml may produce.
func toJSONCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJSONCompatible(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = toJSONCompatible(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJSONCompatible(val)
		}
		return out
	}
	return v
}

// Build replays def through a new workflow builder. The returned error
// names the failing step.
func Build(def *Definition, opts ...workflow.Option) (*model.Workflow, error) {
	if def.Dir != "" {
		opts = append([]workflow.Option{workflow.WithBaseDir(def.Dir)}, opts...)
	}
	b := workflow.NewBuilder(def.Name, opts...)

	if def.SystemConfig != "" {
		if err := b.SetSystemConfig(def.SystemConfig); err != nil {
			return nil, err
		}
	}
	b.SetInputData(def.InputData...)
	b.SetBannedSites(def.BannedSites...)
	b.SetIgnoreApplicationErrors(def.IgnoreAppErrors)

	for i, s := range def.Steps {
		kind, err := model.ParseStepKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		args := s.Args
		if args == nil {
			args = map[string]any{}
		}
		if _, err := b.Add(kind, args); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, kind, err)
		}
	}

	if def.Output != nil {
		if err := b.SetOutputData(def.Output.Files, def.Output.SE, def.Output.Path); err != nil {
			return nil, err
		}
	}
	if _, err := b.Validate(); err != nil {
		return nil, err
	}
	return b.Workflow(), nil
}

// Describe returns a one-line summary of def.
func Describe(def *Definition) string {
	kinds := make([]string, len(def.Steps))
	for i, s := range def.Steps {
		kinds[i] = s.Kind
	}
	return fmt.Sprintf("%s: %s", def.Name, strings.Join(kinds, " -> "))
}
