package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/longform/internal/providers"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix prefixes environment overrides, e.g. LONGFORM_GENERATION_MODEL.
const EnvPrefix = "LONGFORM"

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	logger    *slog.Logger
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cm := &Manager{
		v:         viper.New(),
		logger:    logger,
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("backends", defaults.Backends)

	// Leaf defaults so env overrides and partial files both work.
	g := defaults.Generation
	v.SetDefault("generation.model", g.Model)
	v.SetDefault("generation.generator", g.Generator)
	v.SetDefault("generation.concurrency", g.Concurrency)
	v.SetDefault("generation.tolerance", g.Tolerance)
	v.SetDefault("generation.max_refine_iterations", g.MaxRefineIterations)
	v.SetDefault("generation.draft_attempts", g.DraftAttempts)
	v.SetDefault("generation.plan_attempts", g.PlanAttempts)
	v.SetDefault("generation.plan_retry_delay_seconds", g.PlanRetryDelaySeconds)
	v.SetDefault("generation.document_attempts", g.DocumentAttempts)
	v.SetDefault("generation.document_retry_delay_seconds", g.DocumentRetryDelaySeconds)
	v.SetDefault("generation.extraction", g.Extraction)
	v.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	v.SetDefault("retry.min_wait_seconds", defaults.Retry.MinWaitSeconds)
	v.SetDefault("retry.max_wait_seconds", defaults.Retry.MaxWaitSeconds)
	v.SetDefault("paths.output_root", defaults.Paths.OutputRoot)
	v.SetDefault("paths.ledger", defaults.Paths.Ledger)
	v.SetDefault("paths.prompt_overrides", defaults.Paths.PromptOverrides)

	// Environment variables with LONGFORM_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.longform")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File returns the config file in use, or "" when running on defaults.
func (cm *Manager) File() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A reload that fails
// to parse or validate keeps the previous config.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate checks the settings the generators cannot run without.
func (c *Config) Validate() error {
	g := c.Generation
	switch {
	case g.Concurrency < 1:
		return fmt.Errorf("%w: generation.concurrency must be at least 1, got %d", ErrInvalid, g.Concurrency)
	case g.Tolerance <= 0 || g.Tolerance >= 1:
		return fmt.Errorf("%w: generation.tolerance must be in (0, 1), got %g", ErrInvalid, g.Tolerance)
	case g.MaxRefineIterations < 1:
		return fmt.Errorf("%w: generation.max_refine_iterations must be at least 1", ErrInvalid)
	case g.DraftAttempts < 1 || g.PlanAttempts < 1 || g.DocumentAttempts < 1:
		return fmt.Errorf("%w: attempt counts must be at least 1", ErrInvalid)
	case g.Extraction != "balanced" && g.Extraction != "greedy":
		return fmt.Errorf("%w: generation.extraction must be balanced or greedy, got %q", ErrInvalid, g.Extraction)
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalid)
	}
	return nil
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Backends: make(map[string]providers.BackendConfig, len(c.Backends)),
	}

	for name, b := range c.Backends {
		cfg.Backends[name] = providers.BackendConfig{
			Type:         b.Type,
			BaseURL:      b.BaseURL,
			APIKey:       ResolveEnvVars(b.APIKey),
			Models:       b.Models,
			ModelAliases: b.ModelAliases,
			RateLimit:    b.RateLimit,
			Timeout:      b.Timeout(),
			Enabled:      b.Enabled,
		}
	}

	return cfg
}

// ToServiceConfig fills the retry fields of a providers.ServiceConfig.
func (c *Config) ToServiceConfig(reg *providers.Registry) providers.ServiceConfig {
	return providers.ServiceConfig{
		Registry: reg,
		Attempts: c.Retry.MaxAttempts,
		MinWait:  c.Retry.MinWait(),
		MaxWait:  c.Retry.MaxWait(),
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# longform configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx GEMINI_API_KEY=xxx
# Any setting can be overridden as LONGFORM_<SECTION>_<KEY>, e.g. LONGFORM_GENERATION_MODEL

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
