// Package generation hides several unreliable text generation providers
// behind one resilient call.
//
// # Overview
//
// A Gateway call first consults a TTL response cache keyed by the normalized
// prompt plus the schema hint. On a miss the providers of a Chain are tried
// in ascending priority, each under its own timeout. Providers that keep
// failing are tracked by a HealthTable:
//
//	Healthy --failure--> Degraded --N consecutive failures--> Unavailable
//	Unavailable --cooldown elapsed--> Degraded (trial call) --success--> Healthy
//	                                                       --failure--> Unavailable (longer cooldown)
//
// When every provider fails the call returns a *ChainError matching
// ErrChainExhausted. Callers treat that as a degraded result, not a fatal one.
//
// # Providers
//
//   - OpenAICompatible: Mistral, OpenAI or any chat completions endpoint
//   - HuggingFace: the inference API
//   - Gemini: google.golang.org/genai
//   - Static: canned reply for offline runs
package generation
