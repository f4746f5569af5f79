// ABOUTME: Generation gateway turning one logical call into an ordered multi-provider attempt
// ABOUTME: Owns the response cache, provider health table and in-flight call collapsing

package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Request is one logical generation call. A non-empty Schema requires the
// reply to contain a JSON object or array.
type Request struct {
	Prompt string
	Schema string
}

// Response is the outcome of a successful call.
type Response struct {
	Text       string          `json:"text"`
	Structured json.RawMessage `json:"structured,omitempty"`
	Provider   string          `json:"provider"`
	Cached     bool            `json:"cached"`
	Attempts   int             `json:"attempts"`
}

// CallRecord describes one network attempt against a provider.
type CallRecord struct {
	Provider string
	CacheKey string
	Started  time.Time
	Latency  time.Duration
	Err      error
}

// CallObserver receives every provider attempt. It must not block.
type CallObserver func(CallRecord)

// Options configures a Gateway.
type Options struct {
	CacheTTL     time.Duration
	CacheMaxSize int
	Health       HealthPolicy
	Observer     CallObserver
	Logger       *slog.Logger
}

// Stats is a snapshot of gateway state.
type Stats struct {
	Cache     CacheStats       `json:"cache"`
	Providers []ProviderHealth `json:"providers"`
}

// Gateway is the injectable process-wide generation state. Create one per
// process with New and release it with Close.
type Gateway struct {
	cache    *Cache
	health   *HealthTable
	flight   singleflight.Group
	observer CallObserver
	logger   *slog.Logger
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.CacheMaxSize <= 0 {
		opts.CacheMaxSize = 512
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cache:    NewCache(opts.CacheTTL, opts.CacheMaxSize),
		health:   NewHealthTable(opts.Health),
		observer: opts.Observer,
		logger:   logger.With("component", "generation"),
	}
}

// Health exposes the provider health table.
func (g *Gateway) Health() *HealthTable {
	return g.health
}

// Stats returns cache counters and provider health.
func (g *Gateway) Stats() Stats {
	return Stats{Cache: g.cache.Stats(), Providers: g.health.Snapshot()}
}

// Close releases the cache sweeper.
func (g *Gateway) Close() error {
	g.cache.Close()
	return nil
}

// Generate serves req from the cache or tries the chain in ascending
// priority order. Concurrent misses for the same key share one attempt; a
// caller whose ctx ends stops waiting with ctx.Err() while the attempt
// continues for the others. When every provider fails the error matches
// ErrChainExhausted.
func (g *Gateway) Generate(ctx context.Context, req Request, chain Chain) (*Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidResponse)
	}
	key := CacheKey(req.Prompt, req.Schema)

	if resp, ok := g.cache.Get(key); ok {
		g.logger.Debug("cache hit", "provider", resp.Provider, "key", key[:12])
		resp.Cached = true
		resp.Attempts = 0
		return &resp, nil
	}

	// The shared attempt must not inherit one caller's cancellation; each
	// caller waits under its own ctx while per-provider timeouts bound the work.
	shared := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(key, func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if resp, ok := g.cache.Peek(key); ok {
			resp.Cached = true
			resp.Attempts = 0
			return resp, nil
		}
		resp, err := g.attemptChain(shared, key, req, chain)
		if err != nil {
			return nil, err
		}
		g.cache.Set(key, resp)
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := res.Val.(Response)
		return &resp, nil
	}
}

func (g *Gateway) attemptChain(ctx context.Context, key string, req Request, chain Chain) (Response, error) {
	ordered := chain.Ordered()
	if len(ordered) == 0 {
		return Response{}, ErrNoProviders
	}

	var attempts []Attempt
	network := 0
	for _, d := range ordered {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Provider: d.Name, Skipped: true, Err: err})
			break
		}
		if !g.health.Available(d.Name) {
			g.logger.Debug("skipping unavailable provider", "provider", d.Name)
			attempts = append(attempts, Attempt{Provider: d.Name, Skipped: true, Err: ErrProviderUnavailable})
			continue
		}

		network++
		started := time.Now()
		text, structured, err := g.callOne(ctx, d, req)
		if g.observer != nil {
			g.observer(CallRecord{
				Provider: d.Name,
				CacheKey: key,
				Started:  started,
				Latency:  time.Since(started),
				Err:      err,
			})
		}

		if err != nil {
			if ctx.Err() != nil {
				// The caller gave up; the provider is not at fault.
				attempts = append(attempts, Attempt{Provider: d.Name, Err: err})
				break
			}
			state := g.health.RecordFailure(d.Name, err)
			g.logger.Warn("provider attempt failed",
				"provider", d.Name,
				"state", state,
				"error", err,
			)
			attempts = append(attempts, Attempt{Provider: d.Name, Err: err})
			continue
		}

		g.health.RecordSuccess(d.Name)
		g.logger.Debug("provider attempt succeeded",
			"provider", d.Name,
			"latency", time.Since(started),
		)
		return Response{
			Text:       text,
			Structured: structured,
			Provider:   d.Name,
			Attempts:   network,
		}, nil
	}

	return Response{}, &ChainError{Attempts: attempts}
}

type callResult struct {
	text string
	err  error
}

// callOne runs a single provider under its timeout. The call is abandoned
// at the deadline even if the provider ignores ctx.
func (g *Gateway) callOne(ctx context.Context, d Descriptor, req Request) (string, json.RawMessage, error) {
	callCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	done := make(chan callResult, 1)
	go func() {
		text, err := d.Provider.Call(callCtx, req.Prompt)
		done <- callResult{text: text, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = callResult{err: callCtx.Err()}
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", nil, fmt.Errorf("%w: %s after %s", ErrProviderTimeout, d.Name, d.Timeout)
		}
		return "", nil, fmt.Errorf("%s: %w", d.Name, res.err)
	}

	text := strings.TrimSpace(res.text)
	if text == "" {
		return "", nil, fmt.Errorf("%w: %s returned empty text", ErrInvalidResponse, d.Name)
	}
	if req.Schema == "" {
		return text, nil, nil
	}
	structured, err := ExtractJSON(text)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, d.Name, err)
	}
	return text, structured, nil
}
