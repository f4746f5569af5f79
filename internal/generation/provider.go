// ABOUTME: Provider contract, descriptors and error taxonomy for the generation gateway
// ABOUTME: Fallback logic works on the Provider interface only, never on provider identity

package generation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrProviderTimeout means a provider did not answer within its timeout.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrInvalidResponse means a provider answered with an empty or malformed payload.
	ErrInvalidResponse = errors.New("provider returned an invalid response")
	// ErrProviderUnavailable means the health table skipped the provider.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrChainExhausted means every provider in the chain failed or was skipped.
	ErrChainExhausted = errors.New("provider chain exhausted")
	// ErrNoProviders means the chain was empty.
	ErrNoProviders = errors.New("no providers configured")
)

// Provider is one generation backend. The call must honour ctx cancellation;
// the gateway bounds it with the descriptor timeout.
type Provider interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

// Call implements Provider.
func (f ProviderFunc) Call(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Descriptor ranks a provider inside a chain.
type Descriptor struct {
	Name     string
	Priority int
	Timeout  time.Duration
	Provider Provider
}

// Chain is an ordered set of providers tried for one logical call.
type Chain []Descriptor

// Ordered returns the chain sorted by ascending priority. Equal priorities
// keep their declaration order.
func (c Chain) Ordered() Chain {
	out := make(Chain, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Names lists provider names in chain order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, d := range c {
		names[i] = d.Name
	}
	return names
}

// Without returns a copy of the chain minus the named providers.
func (c Chain) Without(names ...string) Chain {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make(Chain, 0, len(c))
	for _, d := range c {
		if !drop[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// Attempt records the outcome of one provider inside a failed chain.
type Attempt struct {
	Provider string
	Skipped  bool
	Err      error
}

// ChainError is returned when no provider produced a usable response.
// It matches ErrChainExhausted and every underlying attempt error.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrChainExhausted.Error()
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Provider + ": " + a.Err.Error()
	}
	return ErrChainExhausted.Error() + " (" + strings.Join(parts, "; ") + ")"
}

// Unwrap exposes ErrChainExhausted plus each attempt error to errors.Is.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrChainExhausted)
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}
