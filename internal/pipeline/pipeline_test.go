package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/config"
	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/signals"
	"github.com/2389/adbrain/internal/store"
	"github.com/2389/adbrain/internal/workflow"
)

var replies = map[string]string{
	"MemeHarvester":        `{"trending_phrases":[{"phrase":"retro runners","trend_score":9.4,"context":"nostalgia"}],"cultural_moments":["summer"]}`,
	"NarrativeAligner":     `{"story_hook":"Run back to the future","narrative_framework":{"hero":"city runners"},"emotional_drivers":["nostalgia"]}`,
	"CopyCrafter":          `{"headlines":[{"text":"Retro never ran this fast","target_platform":"social media","appeal_type":"emotional"}]}`,
	"HookOptimizer":        `{"ranked_hooks":[{"headline":"Retro never ran this fast","shareability_score":9,"engagement_score":8,"viral_potential":8.5}]}`,
	"SequencePlanner":      `{"email_sequence":[{"step":1,"title":"Welcome"}]}`,
	"AnalyticsInterpreter": `{"performance_summary":{"overall_score":8},"improvement_tips":[{"tip":"Post at dusk","priority":"high"}]}`,
}

func scriptedChain() generation.Chain {
	p := generation.ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		for role, reply := range replies {
			if strings.Contains(prompt, role) {
				return reply, nil
			}
		}
		return "", errors.New("unexpected prompt")
	})
	return generation.Chain{{Name: "gemini", Priority: 1, Timeout: time.Second, Provider: p}}
}

func request() campaign.Request {
	return campaign.Request{Topic: "sneakers", Brand: "Stride", Budget: 5000}
}

func newPipeline(t *testing.T, st store.Store, opts Options) *Pipeline {
	t.Helper()
	p, err := New(context.Background(), config.Default(), st, opts)
	require.NoError(t, err)
	return p
}

func TestRunPersistsResult(t *testing.T) {
	st := store.NewMockStore()
	p := newPipeline(t, st, Options{Chain: scriptedChain()})

	res, err := p.Run(context.Background(), "run-1", request(), nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, workflow.RunCompleted, res.Status)

	saved, err := st.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", saved.Status)
	assert.Equal(t, "sneakers", saved.Topic)
	assert.Equal(t, 0, saved.Degraded)

	var decoded workflow.Result
	require.NoError(t, json.Unmarshal(saved.Result, &decoded))
	assert.Len(t, decoded.Stages, 6)

	require.NoError(t, p.Close(context.Background()))
	calls := st.Calls()
	assert.Len(t, calls, 6)
	for _, c := range calls {
		assert.Equal(t, "gemini", c.Provider)
		assert.Empty(t, c.Error)
		assert.NotEmpty(t, c.ID)
	}
}

func TestRunGeneratesIDWhenEmpty(t *testing.T) {
	p := newPipeline(t, store.NewMockStore(), Options{Chain: scriptedChain()})
	defer p.Close(context.Background())

	res, err := p.Run(context.Background(), "", request(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	st := store.NewMockStore()
	p := newPipeline(t, st, Options{Chain: scriptedChain()})
	defer p.Close(context.Background())

	req := request()
	req.Budget = -100
	res, err := p.Run(context.Background(), "bad", req, nil)
	assert.Nil(t, res)
	var verr *campaign.ValidationError
	require.ErrorAs(t, err, &verr)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDefaultConfigDegradesEveryStage(t *testing.T) {
	st := store.NewMockStore()
	p := newPipeline(t, st, Options{})
	defer p.Close(context.Background())

	res, err := p.Run(context.Background(), "offline", request(), nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunDegraded, res.Status)
	assert.Equal(t, 6, res.Count(workflow.StatusDegraded))

	saved, err := st.GetRun(context.Background(), "offline")
	require.NoError(t, err)
	assert.Equal(t, 6, saved.Degraded)
}

func TestFailedCallsAreRecorded(t *testing.T) {
	st := store.NewMockStore()
	chain := generation.Chain{{Name: "mistral", Priority: 1, Provider: generation.Static{Err: errors.New("503")}}}
	p := newPipeline(t, st, Options{Chain: chain})

	_, err := p.Run(context.Background(), "down", request(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	calls := st.Calls()
	require.NotEmpty(t, calls)
	// The provider trips after the configured threshold and is skipped.
	assert.LessOrEqual(t, len(calls), 3)
	for _, c := range calls {
		assert.Contains(t, c.Error, "503")
	}
}

func TestLiveDataUsesSources(t *testing.T) {
	p := newPipeline(t, store.NewMockStore(), Options{
		Chain: scriptedChain(),
		Sources: func(topic string) []signals.Source {
			return []signals.Source{&signals.StaticSource{
				SourceName: "trending",
				Items:      []signals.Item{{Title: topic + " are back"}},
			}}
		},
	})
	defer p.Close(context.Background())

	req := request()
	req.Flags.IncludeLiveData = true
	res, err := p.Run(context.Background(), "live", req, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, res.SignalBranch.Status)
	assert.Equal(t, []string{"trending"}, res.SignalBranch.Succeeded)
	assert.Equal(t, []string{"sneakers are back"}, res.Signals.Headlines(5))
}

func TestIndexSurvivesRestart(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "adbrain.db"))
	require.NoError(t, err)
	defer st.Close()

	p := newPipeline(t, st, Options{Chain: scriptedChain()})
	_, err = p.Run(context.Background(), "first", request(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, p.Index().Len())
	require.NoError(t, p.Close(context.Background()))

	again := newPipeline(t, st, Options{Chain: scriptedChain()})
	defer again.Close(context.Background())
	assert.Equal(t, 1, again.Index().Len())

	summaries, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "first", summaries[0].ID)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newPipeline(t, store.NewMockStore(), Options{})
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
}

func TestPrepare(t *testing.T) {
	req, err := Prepare(campaign.Request{Topic: "tea", Brand: "Leaf"})
	require.NoError(t, err)
	assert.Equal(t, campaign.CreativityMedium, req.Creativity)

	_, err = Prepare(campaign.Request{Brand: "Leaf"})
	var verr *campaign.ValidationError
	assert.ErrorAs(t, err, &verr)
}
