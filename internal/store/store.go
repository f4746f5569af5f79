// ABOUTME: Store interface and data types for adbrain persistence
// ABOUTME: Defines run records, provider call records and the Store interface

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Run is one persisted workflow result. Result holds the serialized result
// verbatim; the store never interprets it.
type Run struct {
	ID         string
	Topic      string
	Brand      string
	Status     string
	Degraded   int
	Result     json.RawMessage
	CreatedAt  time.Time
	FinishedAt time.Time
}

// RunSummary is a Run without its result payload, for listings.
type RunSummary struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Brand      string    `json:"brand"`
	Status     string    `json:"status"`
	Degraded   int       `json:"degraded"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Status string
	Brand  string
	Since  *time.Time
	Limit  int
}

// ProviderCall records one network attempt against a generation provider.
type ProviderCall struct {
	ID        string
	Provider  string
	CacheKey  string
	Latency   time.Duration
	Error     string
	CreatedAt time.Time
}

// ProviderCallStats aggregates calls per provider.
type ProviderCallStats struct {
	Provider   string        `json:"provider"`
	Calls      int64         `json:"calls"`
	Failures   int64         `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// Store is the persistence boundary of the server.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)

	SaveProviderCall(ctx context.Context, call *ProviderCall) error
	ProviderCallStats(ctx context.Context, since *time.Time) ([]ProviderCallStats, error)

	SaveSimilaritySnapshot(ctx context.Context, engine string, data []byte) error
	LoadSimilaritySnapshot(ctx context.Context, engine string) ([]byte, error)

	Close() error
}
