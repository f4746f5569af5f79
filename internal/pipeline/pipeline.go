// ABOUTME: Assembles gateway, similarity index, aggregator and stages from configuration
// ABOUTME: Runs campaigns end to end and persists results, provider calls and index snapshots

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/adbrain/internal/agents"
	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/config"
	"github.com/2389/adbrain/internal/embedding"
	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/signals"
	"github.com/2389/adbrain/internal/similarity"
	"github.com/2389/adbrain/internal/store"
	"github.com/2389/adbrain/internal/workflow"
)

// callBufferSize bounds provider call records waiting to be written.
const callBufferSize = 256

// Options carries optional overrides, mostly for tests.
type Options struct {
	// Chain replaces the chain built from cfg.Providers.
	Chain generation.Chain
	// StageChains replaces the chain for individual stages.
	StageChains map[string]generation.Chain
	// Sources replaces the sources built from cfg.Signals.Sources.
	Sources    func(topic string) []signals.Source
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Pipeline is the process-wide campaign runtime.
type Pipeline struct {
	cfg          *config.Config
	store        store.Store
	gateway      *generation.Gateway
	chain        generation.Chain
	engine       embedding.Engine
	index        *similarity.Index
	aggregator   *signals.Aggregator
	orchestrator *workflow.Orchestrator
	sources      func(topic string) []signals.Source
	logger       *slog.Logger

	callsMu   sync.RWMutex
	calls     chan store.ProviderCall
	closed    bool
	recorder  sync.WaitGroup
	closeOnce sync.Once
}

// New builds a Pipeline. The store is owned by the caller.
func New(ctx context.Context, cfg *config.Config, st store.Store, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	p := &Pipeline{
		cfg:    cfg,
		store:  st,
		calls:  make(chan store.ProviderCall, callBufferSize),
		logger: logger.With("component", "pipeline"),
	}

	chain := opts.Chain
	if chain == nil {
		var err error
		chain, err = generation.BuildChain(ctx, cfg.Providers, client)
		if err != nil {
			return nil, fmt.Errorf("building provider chain: %w", err)
		}
	}
	p.chain = chain

	p.gateway = generation.New(generation.Options{
		CacheTTL:     cfg.Gateway.CacheTTL,
		CacheMaxSize: cfg.Gateway.CacheMaxSize,
		Health: generation.HealthPolicy{
			Window:      cfg.Gateway.FailureWindow,
			Threshold:   cfg.Gateway.FailureThreshold,
			Cooldown:    cfg.Gateway.Cooldown,
			MaxCooldown: cfg.Gateway.MaxCooldown,
		},
		Observer: p.observe,
		Logger:   logger,
	})

	engine, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		p.gateway.Close()
		return nil, fmt.Errorf("creating embedding engine: %w", err)
	}
	p.engine = engine
	p.index = similarity.New(engine, logger)
	p.restoreIndex(ctx)

	p.aggregator = signals.NewAggregator(signals.Options{
		MaxParallel: cfg.Signals.MaxParallel,
		StaleAfter:  cfg.Signals.StaleAfter,
		Logger:      logger,
	})
	p.sources = opts.Sources
	if p.sources == nil {
		p.sources = func(topic string) []signals.Source {
			return signals.BuildSources(cfg.Signals.Sources, topic, client)
		}
	}

	stages, err := agents.New(agents.Deps{
		Gateway:  p.gateway,
		Chain:    chain,
		Chains:   opts.StageChains,
		Index:    p.index,
		MinScore: cfg.Similarity.MinScore,
		Limit:    cfg.Similarity.Limit,
		Logger:   logger,
	})
	if err != nil {
		p.gateway.Close()
		return nil, err
	}
	graph, err := stages.Graph()
	if err != nil {
		p.gateway.Close()
		return nil, fmt.Errorf("building stage graph: %w", err)
	}
	p.orchestrator, err = workflow.New(workflow.Options{
		Graph:           graph,
		Signals:         p.gatherSignals,
		DefaultBudget:   cfg.Workflow.StageBudget,
		DefaultAttempts: cfg.Workflow.Attempts,
		RetryBackoff:    cfg.Workflow.RetryBackoff,
		Logger:          logger,
	})
	if err != nil {
		p.gateway.Close()
		return nil, err
	}

	p.recorder.Add(1)
	go p.recordCalls()

	p.logger.Info("pipeline ready",
		"providers", chain.Ordered().Names(),
		"stages", len(graph.Order()),
		"embedding", engine.Name(),
		"sources", len(cfg.Signals.Sources),
	)
	return p, nil
}

// Gateway returns the shared generation gateway.
func (p *Pipeline) Gateway() *generation.Gateway { return p.gateway }

// Chain returns the default provider chain.
func (p *Pipeline) Chain() generation.Chain { return p.chain }

// Index returns the similarity index.
func (p *Pipeline) Index() *similarity.Index { return p.index }

// Store returns the backing store.
func (p *Pipeline) Store() store.Store { return p.store }

// Stages returns stage names in execution order.
func (p *Pipeline) Stages() []string { return p.orchestrator.Graph().Order() }

// Prepare applies defaults and validates req without running anything.
func Prepare(req campaign.Request) (campaign.Request, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// Run executes one campaign and persists the result. A nil result means the
// request was rejected before any stage ran.
func (p *Pipeline) Run(ctx context.Context, runID string, req campaign.Request, progress workflow.ProgressFunc) (*workflow.Result, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	res, runErr := p.orchestrator.RunWithID(ctx, runID, req, progress)
	if res == nil {
		return nil, runErr
	}
	if err := p.persist(ctx, res); err != nil {
		p.logger.Error("failed to persist run", "run_id", res.RunID, "error", err)
	}
	return res, runErr
}

func (p *Pipeline) persist(ctx context.Context, res *workflow.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	// A cancelled request still leaves a record.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return p.store.SaveRun(ctx, &store.Run{
		ID:         res.RunID,
		Topic:      res.Request.Topic,
		Brand:      res.Request.Brand,
		Status:     string(res.Status),
		Degraded:   res.Count(workflow.StatusDegraded),
		Result:     data,
		CreatedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	})
}

func (p *Pipeline) gatherSignals(ctx context.Context, req campaign.Request) signals.Snapshot {
	return p.aggregator.Aggregate(ctx, p.sources(req.Topic),
		p.cfg.Signals.PerSourceTimeout, p.cfg.Signals.AggregateDeadline)
}

// observe runs on the gateway's hot path and must not block.
func (p *Pipeline) observe(rec generation.CallRecord) {
	call := store.ProviderCall{
		ID:        uuid.New().String(),
		Provider:  rec.Provider,
		CacheKey:  rec.CacheKey,
		Latency:   rec.Latency,
		CreatedAt: rec.Started,
	}
	if rec.Err != nil {
		call.Error = rec.Err.Error()
	}

	p.callsMu.RLock()
	defer p.callsMu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.calls <- call:
	default:
		p.logger.Debug("dropped provider call record", "provider", rec.Provider)
	}
}

func (p *Pipeline) recordCalls() {
	defer p.recorder.Done()
	for call := range p.calls {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.store.SaveProviderCall(ctx, &call); err != nil {
			p.logger.Warn("failed to record provider call", "provider", call.Provider, "error", err)
		}
		cancel()
	}
}

func (p *Pipeline) restoreIndex(ctx context.Context) {
	data, err := p.store.LoadSimilaritySnapshot(ctx, p.engine.Name())
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		p.logger.Warn("failed to load similarity snapshot", "error", err)
		return
	}
	if err := p.index.UnmarshalSnapshot(data); err != nil {
		p.logger.Warn("discarding unusable similarity snapshot", "error", err)
	}
}

// SaveIndex persists the similarity index.
func (p *Pipeline) SaveIndex(ctx context.Context) error {
	data, err := p.index.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("encoding similarity snapshot: %w", err)
	}
	return p.store.SaveSimilaritySnapshot(ctx, p.engine.Name(), data)
}

// Close saves the index, flushes pending call records and stops the gateway.
// It does not close the store.
func (p *Pipeline) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		err = p.SaveIndex(ctx)
		p.callsMu.Lock()
		p.closed = true
		close(p.calls)
		p.callsMu.Unlock()
		p.recorder.Wait()
		_ = p.gateway.Close()
	})
	return err
}
