package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/ilcdirac/pkg/model"
)

// Marshal encodes a workflow as YAML, or JSON when format is "json".
func Marshal(wf *model.Workflow, format string) ([]byte, error) {
	if strings.EqualFold(format, "json") {
		return json.MarshalIndent(wf, "", "  ")
	}
	return yaml.Marshal(wf)
}

// Unmarshal decodes a YAML or JSON workflow and checks its links.
func Unmarshal(data []byte) (*model.Workflow, error) {
	var wf model.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if wf.Roles == nil {
		wf.Roles = make(map[model.Role]string)
	}
	if _, err := BuildDAG(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Load reads a workflow file.
func Load(path string) (*model.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return Unmarshal(data)
}

// Save writes a workflow file, choosing JSON for a .json extension.
func Save(path string, wf *model.Workflow) error {
	format := "yaml"
	if filepath.Ext(path) == ".json" {
		format = "json"
	}
	data, err := Marshal(wf, format)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
