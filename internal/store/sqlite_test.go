// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers run persistence, filtered listing, provider stats and snapshots

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, &Run{ID: "r1", Topic: "t", Brand: "b", Status: "completed", Result: json.RawMessage(`{}`)}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetRun(ctx, "r1")
	assert.NoError(t, err)
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	run := &Run{
		ID:         "run-1",
		Topic:      "summer sneakers",
		Brand:      "Stride",
		Status:     "degraded",
		Degraded:   2,
		Result:     json.RawMessage(`{"run_id":"run-1","stages":[]}`),
		CreatedAt:  created,
		FinishedAt: created.Add(4 * time.Second),
	}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Topic, got.Topic)
	assert.Equal(t, run.Degraded, got.Degraded)
	assert.JSONEq(t, string(run.Result), string(got.Result))
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, run.FinishedAt.Equal(got.FinishedAt))

	// Saving again replaces the result.
	run.Status = "completed"
	run.Result = json.RawMessage(`{"run_id":"run-1","status":"completed"}`)
	require.NoError(t, s.SaveRun(ctx, run))
	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, r := range []struct{ id, brand, status string }{
		{"a", "Stride", "completed"},
		{"b", "Stride", "degraded"},
		{"c", "Orbit", "completed"},
	} {
		require.NoError(t, s.SaveRun(ctx, &Run{
			ID:        r.id,
			Topic:     "topic",
			Brand:     r.brand,
			Status:    r.status,
			Result:    json.RawMessage(`{}`),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	ids := func(runs []RunSummary) []string {
		out := make([]string, len(runs))
		for i, r := range runs {
			out[i] = r.ID
		}
		return out
	}

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(limited))

	stride, err := s.ListRuns(ctx, RunFilter{Brand: "Stride", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(stride))

	since := base.Add(90 * time.Minute)
	recent, err := s.ListRuns(ctx, RunFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(recent))

	none, err := s.ListRuns(ctx, RunFilter{Brand: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestProviderCallStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	calls := []ProviderCall{
		{ID: "1", Provider: "gemini", CacheKey: "k1", Latency: 100 * time.Millisecond, CreatedAt: now},
		{ID: "2", Provider: "gemini", CacheKey: "k2", Latency: 300 * time.Millisecond, Error: "timeout", CreatedAt: now},
		{ID: "3", Provider: "mistral", CacheKey: "k2", Latency: 50 * time.Millisecond, CreatedAt: now},
		{ID: "4", Provider: "mistral", CacheKey: "k0", Latency: time.Second, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for i := range calls {
		require.NoError(t, s.SaveProviderCall(ctx, &calls[i]))
	}

	stats, err := s.ProviderCallStats(ctx, nil)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, ProviderCallStats{Provider: "gemini", Calls: 2, Failures: 1, AvgLatency: 200 * time.Millisecond}, stats[0])
	assert.Equal(t, int64(2), stats[1].Calls)

	since := now.Add(-time.Hour)
	recent, err := s.ProviderCallStats(ctx, &since)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(1), recent[1].Calls)
	assert.Equal(t, 50*time.Millisecond, recent[1].AvgLatency)
}

func TestSimilaritySnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadSimilaritySnapshot(ctx, "hash")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveSimilaritySnapshot(ctx, "hash", []byte(`{"version":1}`)))
	require.NoError(t, s.SaveSimilaritySnapshot(ctx, "hash", []byte(`{"version":1,"records":[]}`)))

	data, err := s.LoadSimilaritySnapshot(ctx, "hash")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"records":[]}`, string(data))

	_, err = s.LoadSimilaritySnapshot(ctx, "ollama:nomic")
	assert.ErrorIs(t, err, ErrNotFound)
}
