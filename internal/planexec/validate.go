package planexec

import (
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// validatePlan checks step id uniqueness, that every depends_on
// reference resolves, and that the dependency graph is acyclic.
func validatePlan(plan types.Plan) error {
	seen := make(map[string]bool, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.ID == "" {
			return &kernelerr.InvalidArgument{Field: "step.id", Reason: "must not be empty"}
		}
		if seen[s.ID] {
			return &kernelerr.InvalidArgument{Field: "step.id", Reason: "duplicate id " + s.ID}
		}
		seen[s.ID] = true
	}
	for _, s := range plan.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return &kernelerr.InvalidArgument{Field: "step.dependsOn", Reason: "unknown step " + dep + " referenced by " + s.ID}
			}
		}
	}

	adj := make(map[string][]string, len(plan.Steps))
	for _, s := range plan.Steps {
		adj[s.ID] = s.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	color := make(map[string]int, len(plan.Steps))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case visited:
			return nil
		case visiting:
			cyclePath := append(append([]string(nil), path...), id)
			return &kernelerr.CycleError{Path: cyclePath}
		}
		color[id] = visiting
		path = append(path, id)
		for _, dep := range adj[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = visited
		return nil
	}

	for _, s := range plan.Steps {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}
