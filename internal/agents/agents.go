// ABOUTME: The six content stages wired onto the generation gateway and similarity index
// ABOUTME: Renders prompts, decodes structured replies and keeps the analogy memory current

package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/signals"
	"github.com/2389/adbrain/internal/similarity"
	"github.com/2389/adbrain/internal/workflow"
)

// Stage names, in pipeline order.
const (
	StageTrends    = "trends"
	StageNarrative = "narrative"
	StageCopy      = "copy"
	StageHooks     = "hooks"
	StageSequence  = "sequence"
	StageInsights  = "insights"
)

// Names lists every stage in declaration order.
var Names = []string{StageTrends, StageNarrative, StageCopy, StageHooks, StageSequence, StageInsights}

const headlineCount = 5

// Deps are the capabilities the stages share.
type Deps struct {
	Gateway *generation.Gateway
	Chain   generation.Chain
	// Chains replaces Chain for the named stages.
	Chains map[string]generation.Chain
	// Index holds earlier narratives; nil disables analogy memory.
	Index    *similarity.Index
	MinScore float64
	Limit    int
	// Budget and Attempts apply to every stage; zero keeps the orchestrator default.
	Budget   time.Duration
	Attempts int
	Logger   *slog.Logger
}

// Agents builds the stage bodies.
type Agents struct {
	deps      Deps
	templates *template.Template
	logger    *slog.Logger
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"json": func(v any) (string, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		return string(data), err
	},
}

// New parses the prompt templates and returns the stage set.
func New(deps Deps) (*Agents, error) {
	if deps.Gateway == nil {
		return nil, fmt.Errorf("agents: generation gateway is required")
	}
	if deps.Limit <= 0 {
		deps.Limit = 5
	}
	tmpl, err := template.New("prompts").Funcs(templateFuncs).ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing prompt templates: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agents{
		deps:      deps,
		templates: tmpl,
		logger:    logger.With("component", "agents"),
	}, nil
}

// Stages returns the six stage definitions.
func (a *Agents) Stages() []workflow.Stage {
	stage := func(name string, run workflow.RunFunc, placeholder workflow.PlaceholderFunc, deps ...string) workflow.Stage {
		return workflow.Stage{
			Name:        name,
			DependsOn:   deps,
			Budget:      a.deps.Budget,
			Attempts:    a.deps.Attempts,
			Run:         run,
			Placeholder: placeholder,
		}
	}

	narrative := stage(StageNarrative, a.align, narrativePlaceholder, StageTrends)
	narrative.NeedsSignals = true
	insights := stage(StageInsights, a.interpret, insightsPlaceholder, StageSequence)
	insights.NeedsSignals = true

	return []workflow.Stage{
		stage(StageTrends, a.harvest, trendsPlaceholder),
		narrative,
		stage(StageCopy, a.craft, copyPlaceholder, StageNarrative, StageTrends),
		stage(StageHooks, a.optimize, hooksPlaceholder, StageCopy),
		stage(StageSequence, a.plan, sequencePlaceholder, StageNarrative, StageHooks),
		insights,
	}
}

// Graph validates the stages into a workflow graph.
func (a *Agents) Graph() (*workflow.Graph, error) {
	return workflow.NewGraph(a.Stages()...)
}

type promptData struct {
	Request   campaign.Request
	Count     int
	Trends    Trends
	TopPhrase string
	Narrative Narrative
	Copy      Copy
	Hooks     Hooks
	Sequence  Sequence
	Headlines []string
	Sources   []string
	Analogies []Analogy
	Scores    *signals.Scores
}

func (a *Agents) chainFor(stage string) generation.Chain {
	if c, ok := a.deps.Chains[stage]; ok {
		return c
	}
	return a.deps.Chain
}

func (a *Agents) render(stage string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := a.templates.ExecuteTemplate(&buf, stage+".tmpl", data); err != nil {
		return "", workflow.Fatal(stage, fmt.Errorf("rendering prompt: %w", err))
	}
	return buf.String(), nil
}

// generate renders the stage prompt, calls the gateway and decodes the reply into T.
func generate[T validator](ctx context.Context, a *Agents, stage string, data promptData) (T, workflow.StageResult, error) {
	var art T
	prompt, err := a.render(stage, data)
	if err != nil {
		return art, workflow.StageResult{}, err
	}
	resp, err := a.deps.Gateway.Generate(ctx, generation.Request{
		Prompt: prompt,
		Schema: "adbrain." + stage + ".v1",
	}, a.chainFor(stage))
	if err != nil {
		return art, workflow.StageResult{}, err
	}
	if err := json.Unmarshal(resp.Structured, &art); err != nil {
		return art, workflow.StageResult{}, fmt.Errorf("%w: decoding %s reply: %v", generation.ErrInvalidResponse, stage, err)
	}
	if err := checkArtifact(art); err != nil {
		return art, workflow.StageResult{}, err
	}
	return art, workflow.StageResult{Artifact: art, Provider: resp.Provider, Cached: resp.Cached}, nil
}

func (a *Agents) harvest(ctx context.Context, in workflow.Input) (workflow.StageResult, error) {
	_, res, err := generate[Trends](ctx, a, StageTrends, promptData{
		Request: in.Request,
		Count:   in.Request.TrendDepth.TrendCount(),
	})
	return res, err
}

func (a *Agents) align(ctx context.Context, in workflow.Input) (workflow.StageResult, error) {
	var trends Trends
	if err := in.View.Decode(StageTrends, &trends); err != nil {
		return workflow.StageResult{}, err
	}
	top := trends.Top()
	analogies := a.recall(ctx, in, top)

	art, res, err := generate[Narrative](ctx, a, StageNarrative, promptData{
		Request:   in.Request,
		Trends:    trends,
		Headlines: in.Signals.Headlines(headlineCount),
		Analogies: analogies,
	})
	if err != nil {
		return res, err
	}
	art.Analogies = analogies
	res.Artifact = art
	a.remember(ctx, in, top, art)
	return res, nil
}

// recall looks up earlier narratives for the same trend and brand. Memory is
// advisory, so embedding failures only cost the analogies.
func (a *Agents) recall(ctx context.Context, in workflow.Input, trend string) []Analogy {
	if a.deps.Index == nil {
		return nil
	}
	matches, err := a.deps.Index.Query(ctx, analogyText(trend, in.Request.Brand), a.deps.Limit,
		similarity.WithMinScore(a.deps.MinScore))
	if err != nil {
		a.logger.Warn("analogy lookup failed", "run_id", in.RunID, "error", err)
		return nil
	}
	out := make([]Analogy, 0, len(matches))
	for _, m := range matches {
		out = append(out, Analogy{Key: m.Key, Text: m.Text, Score: m.Score})
	}
	return out
}

func (a *Agents) remember(ctx context.Context, in workflow.Input, trend string, n Narrative) {
	if a.deps.Index == nil || trend == "" {
		return
	}
	key := strings.ToLower(trend) + "|" + strings.ToLower(in.Request.Brand)
	payload := map[string]any{
		"topic":      in.Request.Topic,
		"brand":      in.Request.Brand,
		"trend":      trend,
		"story_hook": n.StoryHook,
	}
	text := analogyText(trend, in.Request.Brand) + ": " + n.StoryHook
	if _, err := a.deps.Index.Insert(ctx, text, payload, similarity.WithKey(key)); err != nil {
		a.logger.Warn("storing analogy failed", "run_id", in.RunID, "error", err)
	}
}

func analogyText(trend, brand string) string {
	return trend + " x " + brand
}

func (a *Agents) craft(ctx context.Context, in workflow.Input) (workflow.StageResult, error) {
	var narrative Narrative
	var trends Trends
	if err := in.View.Decode(StageNarrative, &narrative); err != nil {
		return workflow.StageResult{}, err
	}
	if err := in.View.Decode(StageTrends, &trends); err != nil {
		return workflow.StageResult{}, err
	}
	_, res, err := generate[Copy](ctx, a, StageCopy, promptData{
		Request:   in.Request,
		Narrative: narrative,
		TopPhrase: trends.Top(),
	})
	return res, err
}

func (a *Agents) optimize(ctx context.Context, in workflow.Input) (workflow.StageResult, error) {
	var c Copy
	if err := in.View.Decode(StageCopy, &c); err != nil {
		return workflow.StageResult{}, err
	}
	_, res, err := generate[Hooks](ctx, a, StageHooks, promptData{Request: in.Request, Copy: c})
	return res, err
}

func (a *Agents) plan(ctx context.Context, in workflow.Input) (workflow.StageResult, error) {
	var narrative Narrative
	var hooks Hooks
	if err := in.View.Decode(StageNarrative, &narrative); err != nil {
		return workflow.StageResult{}, err
	}
	if err := in.View.Decode(StageHooks, &hooks); err != nil {
		return workflow.StageResult{}, err
	}
	_, res, err := generate[Sequence](ctx, a, StageSequence, promptData{
		Request:   in.Request,
		Narrative: narrative,
		Hooks:     hooks,
	})
	return res, err
}

func (a *Agents) interpret(ctx context.Context, in workflow.Input) (workflow.StageResult, error) {
	var seq Sequence
	if err := in.View.Decode(StageSequence, &seq); err != nil {
		return workflow.StageResult{}, err
	}
	data := promptData{Request: in.Request, Sequence: seq}
	if in.Request.Flags.IncludeLiveData {
		scores := signals.Score(in.Signals)
		data.Scores = &scores
		data.Sources = in.Signals.Succeeded()
	}
	art, res, err := generate[Insights](ctx, a, StageInsights, data)
	if err != nil {
		return res, err
	}
	attachSignals(&art, in)
	res.Artifact = art
	return res, nil
}
