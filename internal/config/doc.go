// Package config handles configuration loading for adbrain.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Anything the file omits keeps the value from Default(), which
// runs fully offline.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ADBRAIN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/adbrain/config.yaml
//  3. ~/.config/adbrain/config.yaml
//
// A path ending in .toml is decoded as TOML.
//
// # Environment Variable Expansion
//
//	providers:
//	  - name: mistral
//	    kind: openai
//	    endpoint: "https://api.mistral.ai/v1/chat/completions"
//	    api_key: "${MISTRAL_API_KEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	gateway:
//	  cache_ttl: "1h"
//	  failure_window: "5m"
//	  cooldown: "30s"
//	signals:
//	  per_source_timeout: "3s"
//	  aggregate_deadline: "5s"
//	  stale_after: "24h"
//
// # Configuration Sections
//
//	server:      http_addr
//	database:    path
//	logging:     level (debug, info, warn, error), format (text, json)
//	gateway:     cache_ttl, cache_max_size, failure_window, failure_threshold, cooldown, max_cooldown
//	providers:   name, kind (openai, huggingface, gemini, static), priority, timeout, endpoint, model, api_key
//	embedding:   kind (hash, ollama, genai), endpoint, model, api_key, dimensions
//	similarity:  min_score, limit
//	signals:     per_source_timeout, aggregate_deadline, stale_after, max_parallel, sources
//	workflow:    stage_budget, attempts, retry_backoff
package config
