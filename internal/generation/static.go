// ABOUTME: Deterministic local provider returning a canned reply
// ABOUTME: Lets the pipeline run offline and gives tests a provider without a network

package generation

import (
	"context"
	"errors"
)

// Static always returns Response, or Err when set.
type Static struct {
	Response string
	Err      error
}

// Call implements Provider.
func (p Static) Call(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Err != nil {
		return "", p.Err
	}
	if p.Response == "" {
		return "", errors.New("static provider has no response configured")
	}
	return p.Response, nil
}
