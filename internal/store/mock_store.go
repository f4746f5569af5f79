// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	runs      map[string]*Run   // keyed by run ID
	calls     []ProviderCall    // insertion order
	snapshots map[string][]byte // keyed by engine
	order     map[string]int    // run ID -> insertion sequence
	seq       int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		runs:      make(map[string]*Run),
		snapshots: make(map[string][]byte),
		order:     make(map[string]int),
	}
}

// SaveRun stores a copy of run.
func (m *MockStore) SaveRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *run
	r.Result = slices.Clone(run.Result)
	m.runs[r.ID] = &r
	if _, ok := m.order[r.ID]; !ok {
		m.seq++
		m.order[r.ID] = m.seq
	}
	return nil
}

// GetRun retrieves a run by ID.
func (m *MockStore) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	out.Result = slices.Clone(r.Result)
	return &out, nil
}

// ListRuns returns summaries newest first.
func (m *MockStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var matched []*Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Brand != "" && r.Brand != filter.Brand {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return m.order[matched[i].ID] > m.order[matched[j].ID]
	})

	out := []RunSummary{}
	for _, r := range matched {
		if len(out) == limit {
			break
		}
		out = append(out, RunSummary{
			ID:         r.ID,
			Topic:      r.Topic,
			Brand:      r.Brand,
			Status:     r.Status,
			Degraded:   r.Degraded,
			CreatedAt:  r.CreatedAt,
			FinishedAt: r.FinishedAt,
		})
	}
	return out, nil
}

// SaveProviderCall records a call.
func (m *MockStore) SaveProviderCall(ctx context.Context, call *ProviderCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *call)
	return nil
}

// ProviderCallStats aggregates recorded calls per provider.
func (m *MockStore) ProviderCallStats(ctx context.Context, since *time.Time) ([]ProviderCallStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byProvider := make(map[string]*ProviderCallStats)
	totals := make(map[string]time.Duration)
	for _, c := range m.calls {
		if since != nil && c.CreatedAt.Before(*since) {
			continue
		}
		st, ok := byProvider[c.Provider]
		if !ok {
			st = &ProviderCallStats{Provider: c.Provider}
			byProvider[c.Provider] = st
		}
		st.Calls++
		if c.Error != "" {
			st.Failures++
		}
		totals[c.Provider] += c.Latency
	}

	var out []ProviderCallStats
	for name, st := range byProvider {
		st.AvgLatency = totals[name] / time.Duration(st.Calls)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// Calls returns a copy of every recorded provider call.
func (m *MockStore) Calls() []ProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.calls)
}

// SaveSimilaritySnapshot stores a copy of data.
func (m *MockStore) SaveSimilaritySnapshot(ctx context.Context, engine string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[engine] = slices.Clone(data)
	return nil
}

// LoadSimilaritySnapshot returns the stored snapshot for engine.
func (m *MockStore) LoadSimilaritySnapshot(ctx context.Context, engine string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.snapshots[engine]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Ensure MockStore implements Store interface.
var _ Store = (*MockStore)(nil)
