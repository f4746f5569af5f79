// ABOUTME: Hugging Face inference API provider for text generation models
// ABOUTME: Accepts both the list and single-object reply shapes of the API

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HuggingFace calls {Endpoint}/{Model} on the inference API.
type HuggingFace struct {
	Endpoint     string
	APIKey       string
	Model        string
	MaxNewTokens int
	HTTPClient   *http.Client
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens,omitempty"`
	ReturnFullText bool `json:"return_full_text"`
}

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error,omitempty"`
}

// Call implements Provider.
func (p *HuggingFace) Call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(hfRequest{
		Inputs:     prompt,
		Parameters: hfParameters{MaxNewTokens: p.MaxNewTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(p.Endpoint, "/") + "/" + p.Model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := httpClient(p.HTTPClient).Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var list []hfGenerated
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) == 0 {
			return "", fmt.Errorf("%w: empty generation list", ErrInvalidResponse)
		}
		return strings.TrimSpace(list[0].GeneratedText), nil
	}

	var single hfGenerated
	if err := json.Unmarshal(data, &single); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if single.Error != "" {
		return "", fmt.Errorf("API error: %s", single.Error)
	}
	return strings.TrimSpace(single.GeneratedText), nil
}
