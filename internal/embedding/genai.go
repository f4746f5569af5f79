// ABOUTME: Google GenAI embedding engine using gemini-embedding models
// ABOUTME: Requests semantic-similarity embeddings, optionally truncated to a fixed size

package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAIEngine creates a GenAI engine. dims of 0 keeps the model default.
func NewGenAIEngine(ctx context.Context, apiKey, model string, dims int) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIEngine{client: client, model: model, dims: dims}, nil
}

// Embed implements Engine.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if e.dims > 0 {
		n := int32(e.dims)
		cfg.OutputDimensionality = &n
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Dimensions implements Engine.
func (e *GenAIEngine) Dimensions() int { return e.dims }

// Name implements Engine.
func (e *GenAIEngine) Name() string { return "genai:" + e.model }
