// Package stepinput flattens a step's parameter bindings into the concrete
// values a worker module runs with:
// - literals are taken as bound
// - links are looked up in the outputs recorded by earlier steps
// - unbound parameters take their declared default
package stepinput

import (
	"fmt"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// Ledger records the outputs of finished steps, keyed by step name and then
// parameter name.
type Ledger map[string]map[string]any

// Record stores the outputs of step, merging with anything already recorded.
func (l Ledger) Record(step string, outputs map[string]any) {
	m, ok := l[step]
	if !ok {
		m = make(map[string]any, len(outputs))
		l[step] = m
	}
	for k, v := range outputs {
		m[k] = v
	}
}

// Lookup returns a recorded output.
func (l Ledger) Lookup(step, param string) (any, bool) {
	outputs, ok := l[step]
	if !ok {
		return nil, false
	}
	v, ok := outputs[param]
	return v, ok
}

// ResolveStep returns the flat parameter map of step. Every parameter of the
// schema appears in the result.
func ResolveStep(wf *model.Workflow, step *model.Step, ledger Ledger) (map[string]any, error) {
	resolved := make(map[string]any, len(step.Parameters))
	for _, p := range step.Parameters {
		var value any
		switch {
		case p.Value == nil:
			value = p.Default
		case p.Value.IsLink():
			v, err := ResolveSource(wf, *p.Value.Link, ledger)
			if err != nil {
				return nil, fmt.Errorf("step %s parameter %s: %w", step.Name, p.Name, err)
			}
			value = v
		default:
			value = p.Value.Literal
		}
		if value == nil {
			value = p.Default
		}
		v, err := Normalize(p.Type, value)
		if err != nil {
			return nil, model.NewJobError(model.ErrInvalidArgument, "Resolve",
				fmt.Sprintf("step %s parameter %s: %v", step.Name, p.Name, err), nil)
		}
		resolved[p.Name] = v
	}
	return resolved, nil
}

// ResolveSource resolves a link. A value recorded in the ledger wins;
// otherwise the source step's own binding is used, following chained links.
func ResolveSource(wf *model.Workflow, l model.Link, ledger Ledger) (any, error) {
	seen := make(map[model.Link]bool)
	for {
		if v, ok := ledger.Lookup(l.Step, l.Param); ok {
			return v, nil
		}
		if seen[l] {
			return nil, unresolved(l, "link cycle")
		}
		seen[l] = true

		src := wf.Step(l.Step)
		if src == nil {
			return nil, unresolved(l, "source step is not defined")
		}
		p := src.Param(l.Param)
		if p == nil {
			return nil, unresolved(l, "source step has no such parameter")
		}
		if !p.Value.IsLink() {
			v, _ := src.LiteralValue(l.Param)
			return v, nil
		}
		l = *p.Value.Link
	}
}

func unresolved(l model.Link, msg string) error {
	return model.NewJobError(model.ErrUnresolvedLink, "Resolve", fmt.Sprintf("%s: %s", l, msg), nil)
}

// Normalize coerces a decoded value to the parameter type. YAML and JSON
// decoding leave ints as int or float64 and lists as []any.
func Normalize(t model.ParamType, v any) (any, error) {
	switch t {
	case model.TypeInt:
		if v == nil {
			return 0, nil
		}
		n, ok := model.AsInt(v)
		if !ok {
			return nil, fmt.Errorf("expected int, got %T", v)
		}
		return n, nil
	case model.TypeBool:
		if v == nil {
			return false, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case model.TypeList:
		return toList(v)
	case model.TypeString:
		switch s := v.(type) {
		case nil:
			return "", nil
		case string:
			return s, nil
		case []string:
			return strings.Join(s, ";"), nil
		}
		return fmt.Sprint(v), nil
	}
	return v, nil
}

func toList(v any) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return []string{}, nil
	case string:
		if l == "" {
			return []string{}, nil
		}
		var out []string
		for _, item := range strings.Split(l, ";") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	case []string:
		return l, nil
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected list of strings, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list, got %T", v)
}
