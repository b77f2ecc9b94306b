package config

import "time"

// Config holds longform configuration.
// Stored at: ~/.longform/config.yaml or ./config.yaml
type Config struct {
	Backends   map[string]BackendCfg `mapstructure:"backends" yaml:"backends"`
	Generation GenerationCfg         `mapstructure:"generation" yaml:"generation"`
	Retry      RetryCfg              `mapstructure:"retry" yaml:"retry"`
	Paths      PathsCfg              `mapstructure:"paths" yaml:"paths"`
}

// BackendCfg configures one completion backend.
type BackendCfg struct {
	Type           string            `mapstructure:"type" yaml:"type"`         // "openai", "gemini", "mock"
	BaseURL        string            `mapstructure:"base_url" yaml:"base_url"` // OpenAI-compatible endpoint
	APIKey         string            `mapstructure:"api_key" yaml:"api_key"`   // API key (supports ${ENV_VAR} syntax)
	Models         []string          `mapstructure:"models" yaml:"models"`
	ModelAliases   map[string]string `mapstructure:"model_aliases" yaml:"model_aliases,omitempty"`
	RateLimit      float64           `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second, 0 = unlimited
	TimeoutSeconds int               `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled        bool              `mapstructure:"enabled" yaml:"enabled"`
}

// Timeout returns the per-request timeout.
func (b BackendCfg) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// GenerationCfg tunes the generators and the batch run.
type GenerationCfg struct {
	Model                     string  `mapstructure:"model" yaml:"model"`
	Generator                 string  `mapstructure:"generator" yaml:"generator"`
	Concurrency               int     `mapstructure:"concurrency" yaml:"concurrency"`
	Tolerance                 float64 `mapstructure:"tolerance" yaml:"tolerance"`
	MaxRefineIterations       int     `mapstructure:"max_refine_iterations" yaml:"max_refine_iterations"`
	DraftAttempts             int     `mapstructure:"draft_attempts" yaml:"draft_attempts"`
	PlanAttempts              int     `mapstructure:"plan_attempts" yaml:"plan_attempts"`
	PlanRetryDelaySeconds     float64 `mapstructure:"plan_retry_delay_seconds" yaml:"plan_retry_delay_seconds"`
	DocumentAttempts          int     `mapstructure:"document_attempts" yaml:"document_attempts"`
	DocumentRetryDelaySeconds float64 `mapstructure:"document_retry_delay_seconds" yaml:"document_retry_delay_seconds"`
	Extraction                string  `mapstructure:"extraction" yaml:"extraction"` // "balanced" or "greedy"
}

// PlanRetryDelay returns the plan retry base delay.
func (g GenerationCfg) PlanRetryDelay() time.Duration {
	return seconds(g.PlanRetryDelaySeconds)
}

// DocumentRetryDelay returns the whole-document retry base delay.
func (g GenerationCfg) DocumentRetryDelay() time.Duration {
	return seconds(g.DocumentRetryDelaySeconds)
}

// RetryCfg bounds retries of individual backend calls.
type RetryCfg struct {
	MaxAttempts    int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	MinWaitSeconds float64 `mapstructure:"min_wait_seconds" yaml:"min_wait_seconds"`
	MaxWaitSeconds float64 `mapstructure:"max_wait_seconds" yaml:"max_wait_seconds"`
}

// MinWait returns the first backoff delay.
func (r RetryCfg) MinWait() time.Duration { return seconds(r.MinWaitSeconds) }

// MaxWait returns the backoff ceiling.
func (r RetryCfg) MaxWait() time.Duration { return seconds(r.MaxWaitSeconds) }

// PathsCfg locates run artifacts.
type PathsCfg struct {
	OutputRoot      string `mapstructure:"output_root" yaml:"output_root"`
	Ledger          string `mapstructure:"ledger" yaml:"ledger"`                     // Empty = ~/.longform/ledger.db
	PromptOverrides string `mapstructure:"prompt_overrides" yaml:"prompt_overrides"` // Empty = ~/.longform/prompts
}

// DefaultTimeoutSeconds is the per-request backend timeout.
const DefaultTimeoutSeconds = 900

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backends: map[string]BackendCfg{
			"openai": {
				Type:           "openai",
				APIKey:         "${OPENAI_API_KEY}",
				Models:         []string{"gpt-4o-mini", "gpt-4o"},
				TimeoutSeconds: DefaultTimeoutSeconds,
				Enabled:        true,
			},
			"gemini": {
				Type:           "gemini",
				APIKey:         "${GEMINI_API_KEY}",
				Models:         []string{"gemini-2.0-flash"},
				TimeoutSeconds: DefaultTimeoutSeconds,
				Enabled:        false,
			},
			"local": {
				Type:           "openai",
				BaseURL:        "http://localhost:8000/v1",
				APIKey:         "EMPTY",
				Models:         []string{"Qwen/Qwen2.5-7B-Instruct"},
				TimeoutSeconds: DefaultTimeoutSeconds,
				Enabled:        false,
			},
		},
		Generation: GenerationCfg{
			Model:                     "gpt-4o-mini",
			Generator:                 "cogwriter",
			Concurrency:               100,
			Tolerance:                 0.1,
			MaxRefineIterations:       5,
			DraftAttempts:             5,
			PlanAttempts:              3,
			PlanRetryDelaySeconds:     1,
			DocumentAttempts:          3,
			DocumentRetryDelaySeconds: 1,
			Extraction:                "balanced",
		},
		Retry: RetryCfg{
			MaxAttempts:    8,
			MinWaitSeconds: 1,
			MaxWaitSeconds: 60,
		},
		Paths: PathsCfg{
			OutputRoot: "longGenBench_output",
		},
	}
}

// GetBackend returns a backend config by name.
func (c *Config) GetBackend(name string) (BackendCfg, bool) {
	b, ok := c.Backends[name]
	return b, ok
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// EnabledBackends returns all enabled backends.
func (c *Config) EnabledBackends() map[string]BackendCfg {
	result := make(map[string]BackendCfg)
	for name, cfg := range c.Backends {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
