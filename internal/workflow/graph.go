// ABOUTME: Static DAG of stages validated once at construction
// ABOUTME: Rejects duplicates, unknown dependencies and cycles; computes a stable topological order

package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Graph is an immutable, validated set of stages.
type Graph struct {
	stages     map[string]Stage
	order      []string
	dependents map[string][]string
}

// NewGraph validates stages and returns the graph. Declaration order breaks
// ties in the topological order.
func NewGraph(stages ...Stage) (*Graph, error) {
	if len(stages) == 0 {
		return nil, errors.New("workflow needs at least one stage")
	}

	g := &Graph{
		stages:     make(map[string]Stage, len(stages)),
		dependents: make(map[string][]string),
	}
	declared := make([]string, 0, len(stages))
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return nil, errors.New("stage name is required")
		}
		if _, dup := g.stages[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage %q", s.Name)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("stage %q has no run function", s.Name)
		}
		s.DependsOn = append([]string(nil), s.DependsOn...)
		g.stages[s.Name] = s
		declared = append(declared, s.Name)
	}

	indegree := make(map[string]int, len(stages))
	for _, name := range declared {
		for _, dep := range g.stages[name].DependsOn {
			if dep == name {
				return nil, fmt.Errorf("stage %q depends on itself", name)
			}
			if _, ok := g.stages[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", name, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], name)
			indegree[name]++
		}
	}

	// Kahn's algorithm, scanning in declaration order for determinism.
	done := make(map[string]bool, len(stages))
	for len(g.order) < len(declared) {
		progressed := false
		for _, name := range declared {
			if done[name] || indegree[name] > 0 {
				continue
			}
			done[name] = true
			g.order = append(g.order, name)
			for _, d := range g.dependents[name] {
				indegree[d]--
			}
			progressed = true
		}
		if !progressed {
			var cyclic []string
			for _, name := range declared {
				if !done[name] {
					cyclic = append(cyclic, name)
				}
			}
			return nil, fmt.Errorf("dependency cycle among stages %v", cyclic)
		}
	}

	return g, nil
}

// Order returns stage names in topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Stage returns the named stage.
func (g *Graph) Stage(name string) (Stage, bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Terminals returns stages nothing depends on, in topological order.
func (g *Graph) Terminals() []string {
	var out []string
	for _, name := range g.order {
		if len(g.dependents[name]) == 0 {
			out = append(out, name)
		}
	}
	return out
}

// Len returns the number of stages.
func (g *Graph) Len() int { return len(g.order) }
