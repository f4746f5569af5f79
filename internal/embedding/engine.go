// ABOUTME: Embedding engine contract and factory for the similarity index
// ABOUTME: Supports a local hashing embedder, Ollama and Google GenAI backends

package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/2389/adbrain/internal/config"
)

// Engine turns text into a fixed-length vector.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the vector length, or 0 when only known after the first call.
	Dimensions() int
	Name() string
}

// New creates the engine selected by cfg.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Engine, error) {
	switch cfg.Kind {
	case config.EmbeddingHash, "":
		return NewHashEngine(cfg.Dimensions), nil
	case config.EmbeddingOllama:
		return NewOllamaEngine(cfg.Endpoint, cfg.Model, cfg.Dimensions), nil
	case config.EmbeddingGenAI:
		return NewGenAIEngine(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding kind %q", cfg.Kind)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
