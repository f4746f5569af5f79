// ABOUTME: Builds a provider chain from configuration entries
// ABOUTME: Maps each configured kind to its Provider implementation

package generation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/2389/adbrain/internal/config"
)

const defaultTemperature = 0.7

// BuildChain creates one Descriptor per configured provider, in config order.
// The HTTP client is shared by every HTTP-based provider; nil uses a default.
func BuildChain(ctx context.Context, providers []config.ProviderConfig, client *http.Client) (Chain, error) {
	chain := make(Chain, 0, len(providers))
	for _, pc := range providers {
		p, err := buildProvider(ctx, pc, client)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		chain = append(chain, Descriptor{
			Name:     pc.Name,
			Priority: pc.Priority,
			Timeout:  pc.Timeout,
			Provider: p,
		})
	}
	return chain, nil
}

func buildProvider(ctx context.Context, pc config.ProviderConfig, client *http.Client) (Provider, error) {
	switch pc.Kind {
	case config.ProviderOpenAI:
		return &OpenAICompatible{
			Endpoint:    pc.Endpoint,
			APIKey:      pc.APIKey,
			Model:       pc.Model,
			Temperature: defaultTemperature,
			MaxTokens:   2048,
			HTTPClient:  client,
		}, nil
	case config.ProviderHuggingFace:
		return &HuggingFace{
			Endpoint:     pc.Endpoint,
			APIKey:       pc.APIKey,
			Model:        pc.Model,
			MaxNewTokens: 1024,
			HTTPClient:   client,
		}, nil
	case config.ProviderGemini:
		return NewGemini(ctx, pc.APIKey, pc.Model, defaultTemperature)
	case config.ProviderStatic:
		return Static{Response: pc.Response}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", pc.Kind)
	}
}
