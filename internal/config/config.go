// ABOUTME: Configuration loading and parsing for adbrain
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the generation gateway.
const (
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
	ProviderStatic      = "static"
)

// Embedding engine kinds.
const (
	EmbeddingHash   = "hash"
	EmbeddingOllama = "ollama"
	EmbeddingGenAI  = "genai"
)

// Signal source kinds.
const (
	SourceJSON = "json"
	SourceFeed = "feed"
)

// Config represents the complete adbrain configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Gateway    GatewayConfig    `yaml:"gateway" toml:"gateway"`
	Providers  []ProviderConfig `yaml:"providers" toml:"providers"`
	Embedding  EmbeddingConfig  `yaml:"embedding" toml:"embedding"`
	Similarity SimilarityConfig `yaml:"similarity" toml:"similarity"`
	Signals    SignalsConfig    `yaml:"signals" toml:"signals"`
	Workflow   WorkflowConfig   `yaml:"workflow" toml:"workflow"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// GatewayConfig holds the response cache and provider health settings.
type GatewayConfig struct {
	CacheTTL         time.Duration `yaml:"-" toml:"-"`
	CacheMaxSize     int           `yaml:"cache_max_size" toml:"cache_max_size"`
	FailureWindow    time.Duration `yaml:"-" toml:"-"`
	FailureThreshold int           `yaml:"failure_threshold" toml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"-" toml:"-"`
	MaxCooldown      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	CacheTTLRaw      string `yaml:"cache_ttl" toml:"cache_ttl"`
	FailureWindowRaw string `yaml:"failure_window" toml:"failure_window"`
	CooldownRaw      string `yaml:"cooldown" toml:"cooldown"`
	MaxCooldownRaw   string `yaml:"max_cooldown" toml:"max_cooldown"`
}

// ProviderConfig describes one generation backend in the fallback chain.
type ProviderConfig struct {
	Name     string        `yaml:"name" toml:"name"`
	Kind     string        `yaml:"kind" toml:"kind"`
	Priority int           `yaml:"priority" toml:"priority"`
	Timeout  time.Duration `yaml:"-" toml:"-"`
	Endpoint string        `yaml:"endpoint" toml:"endpoint"`
	Model    string        `yaml:"model" toml:"model"`
	APIKey   string        `yaml:"api_key" toml:"api_key"`
	// Response is the canned reply of a static provider.
	Response string `yaml:"response" toml:"response"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// EmbeddingConfig selects the engine used by the similarity index.
type EmbeddingConfig struct {
	Kind       string `yaml:"kind" toml:"kind"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	Model      string `yaml:"model" toml:"model"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"`
}

// SimilarityConfig holds analogy lookup settings.
type SimilarityConfig struct {
	MinScore float64 `yaml:"min_score" toml:"min_score"`
	Limit    int     `yaml:"limit" toml:"limit"`
}

// SignalsConfig holds the live data aggregator settings.
type SignalsConfig struct {
	PerSourceTimeout  time.Duration  `yaml:"-" toml:"-"`
	AggregateDeadline time.Duration  `yaml:"-" toml:"-"`
	StaleAfter        time.Duration  `yaml:"-" toml:"-"`
	MaxParallel       int            `yaml:"max_parallel" toml:"max_parallel"`
	Sources           []SourceConfig `yaml:"sources" toml:"sources"`

	PerSourceTimeoutRaw  string `yaml:"per_source_timeout" toml:"per_source_timeout"`
	AggregateDeadlineRaw string `yaml:"aggregate_deadline" toml:"aggregate_deadline"`
	StaleAfterRaw        string `yaml:"stale_after" toml:"stale_after"`
}

// SourceConfig describes one external data feed. URL may contain {topic},
// which is replaced with the query-escaped campaign topic.
type SourceConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Kind     string `yaml:"kind" toml:"kind"`
	Category string `yaml:"category" toml:"category"`
	URL      string `yaml:"url" toml:"url"`
	Selector string `yaml:"selector" toml:"selector"`
	Limit    int    `yaml:"limit" toml:"limit"`
}

// WorkflowConfig holds per-stage execution limits.
type WorkflowConfig struct {
	StageBudget  time.Duration `yaml:"-" toml:"-"`
	RetryBackoff time.Duration `yaml:"-" toml:"-"`
	Attempts     int           `yaml:"attempts" toml:"attempts"`

	StageBudgetRaw  string `yaml:"stage_budget" toml:"stage_budget"`
	RetryBackoffRaw string `yaml:"retry_backoff" toml:"retry_backoff"`
}

// Default returns a configuration that runs fully offline with the hashing
// embedder. It declares no providers or live data sources, so every stage
// falls back to its placeholder until providers are configured.
func Default() *Config {
	cfg := &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8420"},
		Database: DatabaseConfig{Path: "adbrain.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Gateway: GatewayConfig{
			CacheMaxSize:     512,
			FailureThreshold: 3,
			CacheTTLRaw:      "1h",
			FailureWindowRaw: "5m",
			CooldownRaw:      "30s",
			MaxCooldownRaw:   "10m",
		},
		Embedding:  EmbeddingConfig{Kind: EmbeddingHash, Dimensions: 256},
		Similarity: SimilarityConfig{MinScore: 0.5, Limit: 5},
		Signals: SignalsConfig{
			MaxParallel:          4,
			PerSourceTimeoutRaw:  "3s",
			AggregateDeadlineRaw: "5s",
			StaleAfterRaw:        "24h",
		},
		Workflow: WorkflowConfig{
			Attempts:        1,
			StageBudgetRaw:  "90s",
			RetryBackoffRaw: "500ms",
		},
	}
	// The defaults above are literals; parsing cannot fail.
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Values missing from the file keep their Default() value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads the file at path, or the resolved default path when
// path is empty. A missing default file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	resolved := ResolvePath()
	if resolved == "" {
		return Default(), nil
	}
	if _, err := os.Stat(resolved); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(resolved)
}

// ResolvePath returns the config location: ADBRAIN_CONFIG, then
// $XDG_CONFIG_HOME/adbrain/config.yaml, then ~/.config/adbrain/config.yaml.
func ResolvePath() string {
	if p := os.Getenv("ADBRAIN_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "adbrain", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "adbrain", "config.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Gateway.FailureThreshold < 1 {
		return fmt.Errorf("gateway.failure_threshold must be at least 1")
	}
	if c.Gateway.CacheMaxSize < 1 {
		return fmt.Errorf("gateway.cache_max_size must be at least 1")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case ProviderOpenAI, ProviderHuggingFace:
			if p.Endpoint == "" {
				return fmt.Errorf("providers[%d].endpoint is required for kind %q", i, p.Kind)
			}
		case ProviderGemini, ProviderStatic:
		default:
			return fmt.Errorf("providers[%d].kind %q is not supported", i, p.Kind)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("providers[%d].timeout must be positive", i)
		}
	}

	switch c.Embedding.Kind {
	case EmbeddingHash, EmbeddingOllama, EmbeddingGenAI:
	default:
		return fmt.Errorf("embedding.kind %q is not supported", c.Embedding.Kind)
	}
	if c.Embedding.Kind == EmbeddingHash && c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding.dimensions must be at least 1 for the hash engine")
	}

	if c.Signals.MaxParallel < 1 {
		return fmt.Errorf("signals.max_parallel must be at least 1")
	}
	if c.Signals.AggregateDeadline <= 0 {
		return fmt.Errorf("signals.aggregate_deadline must be positive")
	}
	sourceNames := make(map[string]bool, len(c.Signals.Sources))
	for i, s := range c.Signals.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("signals.sources[%d] needs a name and url", i)
		}
		if sourceNames[s.Name] {
			return fmt.Errorf("signals.sources[%d]: duplicate source name %q", i, s.Name)
		}
		sourceNames[s.Name] = true
		if s.Kind != SourceJSON && s.Kind != SourceFeed {
			return fmt.Errorf("signals.sources[%d].kind %q is not supported", i, s.Kind)
		}
	}

	if c.Workflow.Attempts < 1 {
		return fmt.Errorf("workflow.attempts must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"gateway.cache_ttl", cfg.Gateway.CacheTTLRaw, &cfg.Gateway.CacheTTL},
		{"gateway.failure_window", cfg.Gateway.FailureWindowRaw, &cfg.Gateway.FailureWindow},
		{"gateway.cooldown", cfg.Gateway.CooldownRaw, &cfg.Gateway.Cooldown},
		{"gateway.max_cooldown", cfg.Gateway.MaxCooldownRaw, &cfg.Gateway.MaxCooldown},
		{"signals.per_source_timeout", cfg.Signals.PerSourceTimeoutRaw, &cfg.Signals.PerSourceTimeout},
		{"signals.aggregate_deadline", cfg.Signals.AggregateDeadlineRaw, &cfg.Signals.AggregateDeadline},
		{"signals.stale_after", cfg.Signals.StaleAfterRaw, &cfg.Signals.StaleAfter},
		{"workflow.stage_budget", cfg.Workflow.StageBudgetRaw, &cfg.Workflow.StageBudget},
		{"workflow.retry_backoff", cfg.Workflow.RetryBackoffRaw, &cfg.Workflow.RetryBackoff},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.TimeoutRaw == "" {
			p.Timeout = 30 * time.Second
			continue
		}
		d, err := time.ParseDuration(p.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing providers[%d].timeout %q: %w", i, p.TimeoutRaw, err)
		}
		p.Timeout = d
	}

	return nil
}
