// ABOUTME: Gemini provider backed by the google.golang.org/genai client
// ABOUTME: Sends the prompt as a single user turn and returns the concatenated text parts

package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini generates text with a Gemini model.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini provider. An empty model selects gemini-2.5-flash.
func NewGemini(ctx context.Context, apiKey, model string, temperature float32) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{client: client, model: model, temperature: temperature}, nil
}

// Call implements Provider.
func (p *Gemini) Call(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(p.temperature)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", ErrInvalidResponse)
	}
	return text, nil
}
