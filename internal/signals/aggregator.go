// ABOUTME: Bounded-time aggregator fusing independent external data sources
// ABOUTME: Fetches run in parallel under per-source timeouts and one hard aggregate deadline

package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	errAbandoned  = errors.New("abandoned at aggregate deadline")
	errNotStarted = errors.New("not started before aggregate deadline")
)

// Source is one independently failing external feed.
type Source interface {
	Name() string
	Category() string
	Fetch(ctx context.Context) ([]Item, error)
}

// SourceError records why a source contributed no fresh data.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Options configures an Aggregator.
type Options struct {
	// MaxParallel caps concurrent fetches.
	MaxParallel int
	// StaleAfter is the age beyond which reused data is flagged stale.
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// Aggregator fuses sources into snapshots. It remembers the last good
// payload of every source and falls back to it when a fetch fails.
type Aggregator struct {
	maxParallel int
	staleAfter  time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.Mutex
	lastGood map[string]Entry
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts Options) *Aggregator {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 4
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		maxParallel: opts.MaxParallel,
		staleAfter:  opts.StaleAfter,
		now:         time.Now,
		logger:      logger.With("component", "signals"),
		lastGood:    make(map[string]Entry),
	}
}

type fetchResult struct {
	index   int
	source  Source
	items   []Item
	err     error
	started time.Time
	done    time.Time
}

// Aggregate fetches every source concurrently and returns no later than
// deadline. Fetches still running at the deadline are cancelled and their
// results discarded. The call never fails; a source that failed is marked
// failed, or partial when an earlier payload could be reused.
func (a *Aggregator) Aggregate(ctx context.Context, sources []Source, perSourceTimeout, deadline time.Duration) Snapshot {
	started := a.now()
	snap := Snapshot{Entries: make(map[string]Entry, len(sources)), StartedAt: started}
	if len(sources) == 0 {
		snap.CompletedAt = a.now()
		return snap
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Buffered so late fetches never block after we stop listening.
	results := make(chan fetchResult, len(sources))
	launched := make([]bool, len(sources))
	var launchMu sync.Mutex

	go func() {
		var g errgroup.Group
		g.SetLimit(a.maxParallel)
		for i, src := range sources {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				launchMu.Lock()
				launched[i] = true
				launchMu.Unlock()
				r := a.fetch(ctx, src, perSourceTimeout)
				r.index = i
				results <- r
				return nil
			})
		}
		_ = g.Wait()
	}()

	// Counted by position: entries are keyed by name, which callers keep unique.
	received := make([]bool, len(sources))
	pending := len(sources)
collect:
	for pending > 0 {
		select {
		case r := <-results:
			received[r.index] = true
			pending--
			snap.Entries[r.source.Name()] = a.record(r)
		case <-ctx.Done():
			break collect
		}
	}

	launchMu.Lock()
	for i, src := range sources {
		if received[i] {
			continue
		}
		reason := errNotStarted
		if launched[i] {
			reason = errAbandoned
		}
		snap.Entries[src.Name()] = a.record(fetchResult{
			source:  src,
			err:     reason,
			started: started,
			done:    a.now(),
		})
	}
	launchMu.Unlock()

	snap.CompletedAt = a.now()
	a.logger.Info("signals aggregated",
		"sources", len(sources),
		"succeeded", len(snap.Succeeded()),
		"elapsed", snap.Elapsed(),
	)
	return snap
}

func (a *Aggregator) fetch(ctx context.Context, src Source, timeout time.Duration) fetchResult {
	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	started := a.now()
	items, err := src.Fetch(fetchCtx)
	if err == nil && fetchCtx.Err() != nil {
		// Answered after the budget; treat as a timeout.
		err = fetchCtx.Err()
	}
	return fetchResult{source: src, items: items, err: err, started: started, done: a.now()}
}

// record turns a fetch result into a snapshot entry and maintains the
// last-good cache.
func (a *Aggregator) record(r fetchResult) Entry {
	name := r.source.Name()
	entry := Entry{
		Source:   name,
		Category: r.source.Category(),
		Latency:  r.done.Sub(r.started),
	}

	if r.err == nil {
		entry.Items = r.items
		entry.FetchedAt = r.done
		entry.Status = StatusSuccess

		a.mu.Lock()
		a.lastGood[name] = entry
		a.mu.Unlock()
		return entry
	}

	serr := &SourceError{Source: name, Err: r.err}
	entry.Error = serr.Error()
	a.logger.Warn("source fetch failed", "source", name, "error", r.err)

	a.mu.Lock()
	prev, ok := a.lastGood[name]
	a.mu.Unlock()
	if !ok {
		entry.Status = StatusFailed
		return entry
	}

	entry.Items = prev.Items
	entry.FetchedAt = prev.FetchedAt
	entry.Status = StatusPartial
	entry.Stale = a.now().Sub(prev.FetchedAt) > a.staleAfter
	return entry
}
