// ABOUTME: In-memory cosine similarity index over embedded text with payloads
// ABOUTME: Deterministic ordering: descending score, earlier inserts win near-ties

package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/2389/adbrain/internal/embedding"
)

var (
	// ErrInvalidK is returned when a query asks for fewer than one result.
	ErrInvalidK = errors.New("k must be at least 1")
	// ErrEmbedding wraps failures of the embedding engine.
	ErrEmbedding = errors.New("embedding failed")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// scoreTolerance is the distance under which two scores count as tied.
const scoreTolerance = 1e-9

// Record is one stored vector. The index owns its copy of Vector.
type Record struct {
	Key        string         `json:"key,omitempty"`
	Text       string         `json:"text"`
	Vector     []float32      `json:"vector"`
	Payload    map[string]any `json:"payload,omitempty"`
	Seq        uint64         `json:"seq"`
	InsertedAt time.Time      `json:"inserted_at"`
}

// Match is one query result.
type Match struct {
	Key     string         `json:"key,omitempty"`
	Text    string         `json:"text"`
	Payload map[string]any `json:"payload,omitempty"`
	Score   float64        `json:"score"`
}

// Index is a process-wide similarity index. It is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	engine  embedding.Engine
	dims    int
	records []*Record // insertion order
	byKey   map[string]int
	seq     uint64
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an empty index backed by engine. The dimension is taken from
// the engine when it reports one, otherwise from the first insert.
func New(engine embedding.Engine, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	dims := 0
	if engine != nil {
		dims = engine.Dimensions()
	}
	return &Index{
		engine: engine,
		dims:   dims,
		byKey:  make(map[string]int),
		now:    time.Now,
		logger: logger.With("component", "similarity"),
	}
}

// InsertOption customizes an insert.
type InsertOption func(*insertOptions)

type insertOptions struct {
	key string
}

// WithKey makes the insert idempotent for key: an existing record with the
// same key is replaced in place and keeps its original rank.
func WithKey(key string) InsertOption {
	return func(o *insertOptions) { o.key = key }
}

// Insert embeds text and stores it with payload. An embedding failure stores nothing.
func (ix *Index) Insert(ctx context.Context, text string, payload map[string]any, opts ...InsertOption) ([]float32, error) {
	if ix.engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", ErrEmbedding)
	}
	vec, err := ix.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	if err := ix.InsertVector(text, vec, payload, opts...); err != nil {
		return nil, err
	}
	return append([]float32(nil), vec...), nil
}

// InsertVector stores a precomputed vector.
func (ix *Index) InsertVector(text string, vec []float32, payload map[string]any, opts ...InsertOption) error {
	var o insertOptions
	for _, opt := range opts {
		opt(&o)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dims == 0 {
		ix.dims = len(vec)
	}
	if len(vec) != ix.dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), ix.dims)
	}

	rec := &Record{
		Key:        o.key,
		Text:       text,
		Vector:     append([]float32(nil), vec...),
		Payload:    maps.Clone(payload),
		InsertedAt: ix.now(),
	}

	if o.key != "" {
		if i, ok := ix.byKey[o.key]; ok {
			rec.Seq = ix.records[i].Seq
			ix.records[i] = rec
			ix.logger.Debug("replaced record", "key", o.key)
			return nil
		}
	}

	ix.seq++
	rec.Seq = ix.seq
	ix.records = append(ix.records, rec)
	if o.key != "" {
		ix.byKey[o.key] = len(ix.records) - 1
	}
	return nil
}

// QueryOption customizes a query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	minScore float64
	hasMin   bool
}

// WithMinScore drops matches scoring below min.
func WithMinScore(min float64) QueryOption {
	return func(o *queryOptions) {
		o.minScore = min
		o.hasMin = true
	}
}

// Query embeds text and returns up to k matches. An empty index returns an
// empty slice without calling the engine.
func (ix *Index) Query(ctx context.Context, text string, k int, opts ...QueryOption) ([]Match, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if ix.Len() == 0 {
		return []Match{}, nil
	}
	if ix.engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", ErrEmbedding)
	}
	vec, err := ix.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return ix.QueryVector(vec, k, opts...)
}

// QueryVector returns up to k matches for a precomputed vector.
func (ix *Index) QueryVector(vec []float32, k int, opts ...QueryOption) ([]Match, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.records) == 0 {
		return []Match{}, nil
	}
	if len(vec) != ix.dims {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), ix.dims)
	}

	type scored struct {
		rec   *Record
		score float64
	}
	candidates := make([]scored, 0, len(ix.records))
	for _, rec := range ix.records {
		s := embedding.CosineSimilarity(vec, rec.Vector)
		if o.hasMin && s < o.minScore {
			continue
		}
		candidates = append(candidates, scored{rec: rec, score: s})
	}

	// records are already in insertion order, so a stable sort that only
	// separates scores further apart than the tolerance keeps earlier inserts first.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score-candidates[j].score > scoreTolerance
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Match, len(candidates))
	for i, c := range candidates {
		out[i] = Match{
			Key:     c.rec.Key,
			Text:    c.rec.Text,
			Payload: maps.Clone(c.rec.Payload),
			Score:   c.score,
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Dimensions returns the index dimension, or 0 before the first insert.
func (ix *Index) Dimensions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dims
}

// Stats summarizes the index for the API.
type Stats struct {
	Records    int    `json:"records"`
	Dimensions int    `json:"dimensions"`
	Engine     string `json:"engine"`
}

// Stats returns a summary of the index.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{Records: len(ix.records), Dimensions: ix.dims, Engine: ix.engineName()}
}

func (ix *Index) engineName() string {
	if ix.engine == nil {
		return ""
	}
	return ix.engine.Name()
}
