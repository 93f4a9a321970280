package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// StagedSentinel marks an input as staged by an earlier GetSRM step.
const StagedSentinel = "srm"

// IsStaged reports whether an input value is the staging sentinel.
func IsStaged(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), StagedSentinel)
}

func kindIn(k model.StepKind, kinds []model.StepKind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func kindNames(kinds []model.StepKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, " or ")
}

// Nearest scans the steps in reverse and returns the closest step of one of
// kinds exposing capability c, together with the producing parameter.
func Nearest(wf *model.Workflow, c model.Capability, kinds ...model.StepKind) (*model.Step, string) {
	for i := len(wf.Steps) - 1; i >= 0; i-- {
		s := wf.Steps[i]
		if !kindIn(s.Kind, kinds) {
			continue
		}
		if param := produces(s.Kind, c); param != "" {
			return s, param
		}
	}
	return nil, ""
}

// qualifies reports whether the named step exists and exposes c as one of kinds.
func (b *Builder) qualifies(name string, c model.Capability, kinds []model.StepKind) bool {
	s := b.wf.Step(name)
	return s != nil && kindIn(s.Kind, kinds) && produces(s.Kind, c) != ""
}

// producer returns a link to capability c. from names an explicit producer
// step; when empty the nearest qualifying step is used. required controls
// whether a missing producer is an error or a nil link.
func (b *Builder) producer(d *draft, from string, c model.Capability, required bool, kinds ...model.StepKind) (*model.Value, error) {
	if from != "" {
		s := b.wf.Step(from)
		if s == nil {
			return nil, d.fail(model.ErrUnresolvedLink, "step %s is not defined", from)
		}
		if !kindIn(s.Kind, kinds) {
			return nil, d.fail(model.ErrUnresolvedLink, "step %s is a %s step, expected %s", from, s.Kind, kindNames(kinds))
		}
		param := produces(s.Kind, c)
		if param == "" {
			return nil, d.fail(model.ErrUnresolvedLink, "step %s does not produce %s", from, c)
		}
		return model.LinkTo(s.Name, param), nil
	}
	s, param := Nearest(b.wf, c, kinds...)
	if s == nil {
		if required {
			return nil, d.fail(model.ErrUnresolvedLink, "no %s found: a %s step must be defined before", c, kindNames(kinds))
		}
		return nil, nil
	}
	return model.LinkTo(s.Name, param), nil
}

// eventsFrom picks the explicit event-count producer: eventsFrom when set,
// otherwise inputFrom when that step can also provide the count.
func (b *Builder) eventsFrom(eventsFrom, inputFrom string, kinds []model.StepKind) string {
	if eventsFrom != "" {
		return eventsFrom
	}
	if inputFrom != "" && b.qualifies(inputFrom, model.CapEventCount, kinds) {
		return inputFrom
	}
	return ""
}

// stagedFile resolves the staging sentinel to the first file declared by the
// nearest GetSRM step.
func (b *Builder) stagedFile(d *draft) (string, error) {
	s, param := Nearest(b.wf, model.CapStagedFiles, model.KindGetSRM)
	if s == nil {
		return "", d.fail(model.ErrUnresolvedLink, "input is staged by a GetSRM step, but none is defined")
	}
	raw, _ := s.LiteralValue(param)
	text, _ := raw.(string)
	files, err := ParseSRMFiles(text)
	if err != nil {
		return "", d.fail(model.ErrUnresolvedLink, "step %s: %v", s.Name, err)
	}
	if len(files) == 0 {
		return "", d.fail(model.ErrUnresolvedLink, "step %s declares no files", s.Name)
	}
	return files[0], nil
}

// SRMFile is one file to fetch from a storage element.
type SRMFile struct {
	File string `json:"file" yaml:"file"`
	Site string `json:"site" yaml:"site"`
}

// FormatSRMRecords encodes file records for the srmfiles parameter as a
// JSON array, so any file name survives the round trip.
func FormatSRMRecords(files []SRMFile) (string, error) {
	data, err := json.Marshal(files)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseSRMRecords decodes the srmfiles parameter, preserving declaration
// order. Besides the JSON array written by FormatSRMRecords it reads the
// older ;-separated list of single-quoted records.
func ParseSRMRecords(s string) ([]SRMFile, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var recs []SRMFile
		if err := json.Unmarshal([]byte(s), &recs); err != nil {
			return nil, fmt.Errorf("srm records: %w", err)
		}
		for i, r := range recs {
			if r.File == "" {
				return nil, fmt.Errorf("record %d has no file field", i)
			}
		}
		return recs, nil
	}
	var out []SRMFile
	for i, rec := range strings.Split(s, ";") {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(strings.ReplaceAll(rec, "'", `"`)), &fields); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		file, _ := fields["file"].(string)
		if file == "" {
			return nil, fmt.Errorf("record %d has no file field", i)
		}
		site, _ := fields["site"].(string)
		out = append(out, SRMFile{File: file, Site: site})
	}
	return out, nil
}

// ParseSRMFiles returns the file field of each record in declaration order.
func ParseSRMFiles(s string) ([]string, error) {
	recs, err := ParseSRMRecords(s)
	if err != nil {
		return nil, err
	}
	files := make([]string, len(recs))
	for i, r := range recs {
		files[i] = r.File
	}
	return files, nil
}
