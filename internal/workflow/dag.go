package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// DAGResult holds the result of link analysis.
type DAGResult struct {
	// Edges maps each step name to the step names it links to (upstream).
	Edges map[string][]string
	// Order is the topological sort of steps (execution order).
	Order []string
}

// BuildDAG constructs the step dependency graph from parameter links.
// It uses Kahn's algorithm for topological sort and cycle detection, with
// step index as the tie-breaker so independent steps keep their
// declaration order.
//
// Every link must name an earlier step and a parameter that step declares;
// otherwise an UNRESOLVED_LINK error is returned.
func BuildDAG(wf *model.Workflow) (*DAGResult, error) {
	byName := make(map[string]*model.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		if _, dup := byName[s.Name]; dup {
			return nil, model.NewJobError(model.ErrInvalidArgument, "Validate",
				fmt.Sprintf("duplicate step name %s", s.Name), nil)
		}
		byName[s.Name] = s
	}

	// forward[A] = [B, C] means A must complete before B and C.
	// deps[B] = [A] means B depends on A.
	forward := make(map[string][]string, len(wf.Steps))
	deps := make(map[string][]string, len(wf.Steps))
	inDegree := make(map[string]int, len(wf.Steps))
	for _, s := range wf.Steps {
		inDegree[s.Name] = 0
	}

	for _, s := range wf.Steps {
		seen := make(map[string]bool)
		for _, l := range s.Links() {
			src, ok := byName[l.Step]
			if !ok {
				return nil, linkError(s, l, "source step is not defined")
			}
			if src.Name == s.Name {
				return nil, fmt.Errorf("workflow contains a cycle involving steps: %s", s.Name)
			}
			if src.Param(l.Param) == nil {
				return nil, linkError(s, l, "source step has no such parameter")
			}
			if src.Index >= s.Index {
				return nil, linkError(s, l, "source step is not defined before")
			}
			if !seen[src.Name] {
				seen[src.Name] = true
				forward[src.Name] = append(forward[src.Name], s.Name)
				deps[s.Name] = append(deps[s.Name], src.Name)
				inDegree[s.Name]++
			}
		}
	}

	for id := range deps {
		sort.Strings(deps[id])
	}

	byIndex := func(q []string) {
		sort.Slice(q, func(i, j int) bool { return byName[q[i]].Index < byName[q[j]].Index })
	}

	// Kahn's algorithm: BFS topological sort.
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	byIndex(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, succ := range forward[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		byIndex(queue)
	}

	if len(order) != len(wf.Steps) {
		var cycleNodes []string
		for id, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)
		return nil, fmt.Errorf("workflow contains a cycle involving steps: %s",
			strings.Join(cycleNodes, ", "))
	}

	return &DAGResult{Edges: deps, Order: order}, nil
}

func linkError(s *model.Step, l model.Link, msg string) error {
	return model.NewJobError(model.ErrUnresolvedLink, "Validate",
		fmt.Sprintf("step %s links to %s: %s", s.Name, l, msg), nil)
}
