// ABOUTME: End-to-end tests of the six stages on the orchestrator with fake providers
// ABOUTME: Covers the all-healthy run, a degraded copy stage and analogy memory

package agents

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/embedding"
	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/signals"
	"github.com/2389/adbrain/internal/similarity"
	"github.com/2389/adbrain/internal/workflow"
)

var replies = map[string]string{
	"MemeHarvester":        `{"trending_phrases":[{"phrase":"retro runners","trend_score":9.4,"context":"nostalgia"},{"phrase":"trail commute","trend_score":7.1,"context":"outdoors"}],"cultural_moments":["summer"]}`,
	"NarrativeAligner":     "Here you go:\n```json\n" + `{"story_hook":"Run back to the future","narrative_framework":{"hero":"city runners"},"emotional_drivers":["nostalgia"]}` + "\n```",
	"CopyCrafter":          `{"headlines":[{"text":"Retro never ran this fast","target_platform":"social media","appeal_type":"emotional"}]}`,
	"HookOptimizer":        `{"ranked_hooks":[{"headline":"Retro never ran this fast","shareability_score":9,"engagement_score":8,"viral_potential":8.5}]}`,
	"SequencePlanner":      `{"email_sequence":[{"step":1,"title":"Welcome"},{"step":2,"title":"Story"}]}`,
	"AnalyticsInterpreter": `{"performance_summary":{"overall_score":8},"improvement_tips":[{"tip":"Post at dusk","priority":"high"}]}`,
}

// scripted answers each stage prompt with its canned reply.
func scripted(calls *atomic.Int32) generation.Provider {
	return generation.ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		for role, reply := range replies {
			if strings.Contains(prompt, role) {
				return reply, nil
			}
		}
		return "", errors.New("unexpected prompt")
	})
}

func down(context.Context, string) (string, error) {
	return "", errors.New("503 service unavailable")
}

func healthyChain(calls *atomic.Int32) generation.Chain {
	return generation.Chain{
		{Name: "gemini", Priority: 1, Timeout: time.Second, Provider: scripted(calls)},
		{Name: "mistral", Priority: 2, Timeout: time.Second, Provider: scripted(calls)},
		{Name: "huggingface", Priority: 3, Timeout: time.Second, Provider: scripted(calls)},
	}
}

func failingChain() generation.Chain {
	return generation.Chain{
		{Name: "gemini-copy", Priority: 1, Timeout: time.Second, Provider: generation.ProviderFunc(down)},
		{Name: "mistral-copy", Priority: 2, Timeout: time.Second, Provider: generation.ProviderFunc(down)},
		{Name: "huggingface-copy", Priority: 3, Timeout: time.Second, Provider: generation.ProviderFunc(down)},
	}
}

func newPipeline(t *testing.T, deps Deps, branch workflow.SignalBranch) *workflow.Orchestrator {
	t.Helper()
	if deps.Gateway == nil {
		deps.Gateway = generation.New(generation.Options{})
		t.Cleanup(func() { deps.Gateway.Close() })
	}
	a, err := New(deps)
	require.NoError(t, err)
	g, err := a.Graph()
	require.NoError(t, err)
	o, err := workflow.New(workflow.Options{Graph: g, Signals: branch, DefaultBudget: 5 * time.Second})
	require.NoError(t, err)
	return o
}

func request() campaign.Request {
	return campaign.Request{
		Topic:       "summer sneakers",
		Brand:       "Stride",
		Budget:      5000,
		BrandValues: []string{"speed", "heritage"},
	}
}

func TestPipeline_AllProvidersHealthy(t *testing.T) {
	var calls atomic.Int32
	o := newPipeline(t, Deps{Chain: healthyChain(&calls)}, nil)

	res, err := o.Run(context.Background(), request(), nil)
	require.NoError(t, err)

	assert.Equal(t, workflow.RunCompleted, res.Status)
	assert.Equal(t, 6, res.Count(workflow.StatusCompleted))
	assert.Zero(t, res.Count(workflow.StatusDegraded))
	assert.EqualValues(t, 6, calls.Load(), "one call per stage on the first provider")

	for _, s := range res.Stages {
		assert.Equal(t, "gemini", s.Provider, s.Stage)
	}

	narrative, _ := res.Stage(StageNarrative)
	assert.Equal(t, "Run back to the future", narrative.Artifact.(Narrative).StoryHook)
	trends, _ := res.Stage(StageTrends)
	assert.Equal(t, "retro runners", trends.Artifact.(Trends).Top())
}

func TestPipeline_CopyStageDegradesAndHooksContinue(t *testing.T) {
	var calls atomic.Int32
	deps := Deps{
		Chain:  healthyChain(&calls),
		Chains: map[string]generation.Chain{StageCopy: failingChain()},
	}
	o := newPipeline(t, deps, nil)

	res, err := o.Run(context.Background(), request(), nil)
	require.NoError(t, err)

	copyOut, _ := res.Stage(StageCopy)
	assert.Equal(t, workflow.StatusDegraded, copyOut.Status)
	assert.Contains(t, copyOut.Error, "chain exhausted")
	placeholder := copyOut.Artifact.(Copy)
	require.NotEmpty(t, placeholder.Headlines)

	hooks, _ := res.Stage(StageHooks)
	assert.Equal(t, workflow.StatusCompleted, hooks.Status)
	for _, name := range []string{StageTrends, StageNarrative, StageSequence, StageInsights} {
		out, _ := res.Stage(name)
		assert.Equal(t, workflow.StatusCompleted, out.Status, name)
	}
	assert.Equal(t, workflow.RunDegraded, res.Status)
}

func TestPipeline_NoProvidersUsesEveryPlaceholder(t *testing.T) {
	o := newPipeline(t, Deps{}, nil)

	res, err := o.Run(context.Background(), request(), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Count(workflow.StatusDegraded))

	hooks, _ := res.Stage(StageHooks)
	ranked := hooks.Artifact.(Hooks).RankedHooks
	require.NotEmpty(t, ranked)
	copyOut, _ := res.Stage(StageCopy)
	assert.Equal(t, copyOut.Artifact.(Copy).Headlines[0].Text, ranked[0].Headline)

	narrative, _ := res.Stage(StageNarrative)
	assert.Contains(t, narrative.Artifact.(Narrative).StoryHook, "Stride")
}

func TestPipeline_NegativeBudgetRunsNoStage(t *testing.T) {
	var calls atomic.Int32
	o := newPipeline(t, Deps{Chain: healthyChain(&calls)}, nil)

	req := request()
	req.Budget = -100
	res, err := o.Run(context.Background(), req, nil)

	var invalid *campaign.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Nil(t, res)
	assert.Zero(t, calls.Load())
}

func TestPipeline_LiveDataFeedsInsights(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	gw := generation.New(generation.Options{})
	defer gw.Close()

	branch := func(ctx context.Context, req campaign.Request) signals.Snapshot {
		agg := signals.NewAggregator(signals.Options{})
		sources := []signals.Source{
			&signals.StaticSource{SourceName: "hn", SourceCategory: "hackernews", Items: []signals.Item{{Title: "Retro runners are back"}}},
			&signals.StaticSource{SourceName: "gh", SourceCategory: "github", Items: []signals.Item{{Title: "shoe-fit"}, {Title: "gait-ml"}}},
		}
		return agg.Aggregate(ctx, sources, time.Second, 2*time.Second)
	}
	o := newPipeline(t, Deps{Gateway: gw, Chain: healthyChain(&calls)}, branch)

	req := request()
	req.Flags.IncludeLiveData = true
	res, err := o.Run(context.Background(), req, nil)
	require.NoError(t, err)

	insights, _ := res.Stage(StageInsights)
	art := insights.Artifact.(Insights)
	require.NotNil(t, art.Scores)
	assert.Equal(t, []string{"gh", "hn"}, art.Sources)
	assert.Greater(t, art.Scores.Overall, 0.0)
}

func TestPipeline_AnalogyMemory(t *testing.T) {
	var calls atomic.Int32
	idx := similarity.New(embedding.NewHashEngine(256), nil)
	deps := Deps{Chain: healthyChain(&calls), Index: idx, MinScore: 0.5, Limit: 5}
	o := newPipeline(t, deps, nil)

	first, err := o.Run(context.Background(), request(), nil)
	require.NoError(t, err)
	narrative, _ := first.Stage(StageNarrative)
	assert.Empty(t, narrative.Artifact.(Narrative).Analogies)
	assert.Equal(t, 1, idx.Len())

	second, err := o.Run(context.Background(), request(), nil)
	require.NoError(t, err)
	narrative, _ = second.Stage(StageNarrative)
	analogies := narrative.Artifact.(Narrative).Analogies
	require.Len(t, analogies, 1)
	assert.Equal(t, "retro runners|stride", analogies[0].Key)
	assert.GreaterOrEqual(t, analogies[0].Score, 0.5)

	// Same trend and brand replace the stored analogy instead of growing the index.
	assert.Equal(t, 1, idx.Len())
}

func TestNew_RequiresGateway(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestStages_Shape(t *testing.T) {
	gw := generation.New(generation.Options{})
	defer gw.Close()
	a, err := New(Deps{Gateway: gw})
	require.NoError(t, err)

	g, err := a.Graph()
	require.NoError(t, err)
	assert.Equal(t, Names, g.Order())
	assert.Equal(t, []string{StageInsights}, g.Terminals())

	narrative, _ := g.Stage(StageNarrative)
	assert.True(t, narrative.NeedsSignals)
	trends, _ := g.Stage(StageTrends)
	assert.False(t, trends.NeedsSignals)
}
