// ABOUTME: Tests for graph validation and topological ordering
// ABOUTME: Covers duplicates, unknown dependencies, cycles and terminal detection

package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Input) (StageResult, error) {
	return StageResult{Artifact: "ok"}, nil
}

func stage(name string, deps ...string) Stage {
	return Stage{Name: name, DependsOn: deps, Run: noop}
}

func TestNewGraph_Order(t *testing.T) {
	g, err := NewGraph(
		stage("copy", "narrative", "trends"),
		stage("trends"),
		stage("narrative", "trends"),
		stage("insights", "copy"),
		stage("hooks", "copy"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"trends", "narrative", "copy", "insights", "hooks"}, g.Order())
	assert.Equal(t, []string{"insights", "hooks"}, g.Terminals())
	assert.Equal(t, 5, g.Len())

	s, ok := g.Stage("copy")
	require.True(t, ok)
	assert.Equal(t, []string{"narrative", "trends"}, s.DependsOn)
}

func TestNewGraph_OrderIsACopy(t *testing.T) {
	g, err := NewGraph(stage("a"), stage("b", "a"))
	require.NoError(t, err)

	order := g.Order()
	order[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, g.Order())
}

func TestNewGraph_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
		want   string
	}{
		{"empty", nil, "at least one stage"},
		{"blank name", []Stage{stage(" ")}, "name is required"},
		{"duplicate", []Stage{stage("a"), stage("a")}, "duplicate stage"},
		{"no run", []Stage{{Name: "a"}}, "no run function"},
		{"self", []Stage{stage("a", "a")}, "depends on itself"},
		{"unknown", []Stage{stage("a", "ghost")}, "unknown stage"},
		{"cycle", []Stage{stage("a", "c"), stage("b", "a"), stage("c", "b"), stage("d")}, "dependency cycle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.stages...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
