package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Route is how a model identifier reaches a backend.
type Route struct {
	Backend  Backend
	Upstream string // model name sent to the backend
	Limiter  *RateLimiter
}

// Registry maps model identifiers to backends. It is built from
// configuration once and can be reloaded when configuration changes.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]backendEntry
	models   map[string]modelEntry
	logger   *slog.Logger
}

type backendEntry struct {
	cfg     BackendConfig
	backend Backend
	limiter *RateLimiter
}

type modelEntry struct {
	backend  string
	upstream string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]backendEntry),
		models:   make(map[string]modelEntry),
		logger:   slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a backend under name serving models. aliases maps a model
// identifier to the upstream name sent to the backend; models without an
// alias are sent unchanged. rps <= 0 disables rate limiting.
func (r *Registry) Register(name string, b Backend, models []string, aliases map[string]string, rps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = backendEntry{backend: b, limiter: NewRateLimiter(rps)}
	r.bindModels(name, models, aliases)
	if r.logger != nil {
		r.logger.Info("registered backend", "name", name, "type", b.Name(), "models", len(models))
	}
}

// Unregister removes a backend and every model routed to it.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeBackend(name)
}

// Resolve returns the route for model.
func (r *Registry) Resolve(model string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	b, ok := r.backends[m.backend]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s (backend %s gone)", ErrUnknownModel, model, m.backend)
	}
	return Route{Backend: b.backend, Upstream: m.upstream, Limiter: b.limiter}, nil
}

// Models returns all routable model identifiers, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backends returns all registered backend names, sorted.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasModel checks if a model is routable.
func (r *Registry) HasModel(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[model]
	return ok
}

// RegistryConfig defines the backends to instantiate from config.
type RegistryConfig struct {
	Backends map[string]BackendConfig
}

// BackendConfig matches config.BackendCfg with the API key resolved.
type BackendConfig struct {
	Type         string            // "openai", "gemini"
	BaseURL      string            // OpenAI-compatible endpoint
	APIKey       string            // Resolved API key
	Models       []string          // Model identifiers served
	ModelAliases map[string]string // Identifier → upstream model name
	RateLimit    float64           // Requests per second (0 = unlimited)
	Timeout      time.Duration
	Enabled      bool
}

func (c BackendConfig) equal(o BackendConfig) bool {
	if c.Type != o.Type || c.BaseURL != o.BaseURL || c.APIKey != o.APIKey ||
		c.RateLimit != o.RateLimit || c.Timeout != o.Timeout {
		return false
	}
	return true
}

// NewRegistryFromConfig creates a registry with backends based on
// configuration. Disabled backends and unknown types are skipped.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration. Backends whose
// connection settings are unchanged keep their client and rate limiter;
// model bindings are always rebuilt.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, bc := range cfg.Backends {
		if !bc.Enabled {
			continue
		}
		existing, hasExisting := r.backends[name]
		if hasExisting && existing.cfg.equal(bc) {
			want[name] = true
			existing.cfg = bc
			r.backends[name] = existing
			continue
		}
		b := createBackend(bc)
		if b == nil {
			if r.logger != nil {
				r.logger.Warn("skipping backend with unknown type", "name", name, "type", bc.Type)
			}
			continue
		}
		want[name] = true
		r.backends[name] = backendEntry{cfg: bc, backend: b, limiter: NewRateLimiter(bc.RateLimit)}
		if r.logger != nil {
			if hasExisting {
				r.logger.Info("updated backend", "name", name, "type", bc.Type)
			} else {
				r.logger.Info("registered backend", "name", name, "type", bc.Type)
			}
		}
	}

	for name := range r.backends {
		if !want[name] {
			r.removeBackend(name)
		}
	}

	r.models = make(map[string]modelEntry)
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	// Deterministic precedence when two backends claim the same model.
	sort.Strings(names)
	for _, name := range names {
		bc := cfg.Backends[name]
		r.bindModels(name, bc.Models, bc.ModelAliases)
	}
}

// bindModels must be called with lock held.
func (r *Registry) bindModels(backend string, models []string, aliases map[string]string) {
	for _, m := range models {
		if _, taken := r.models[m]; taken {
			continue
		}
		upstream := m
		if a, ok := aliases[m]; ok && a != "" {
			upstream = a
		}
		r.models[m] = modelEntry{backend: backend, upstream: upstream}
	}
	for m, a := range aliases {
		if _, taken := r.models[m]; !taken {
			r.models[m] = modelEntry{backend: backend, upstream: a}
		}
	}
}

// removeBackend must be called with lock held.
func (r *Registry) removeBackend(name string) {
	if _, ok := r.backends[name]; !ok {
		return
	}
	delete(r.backends, name)
	for m, e := range r.models {
		if e.backend == name {
			delete(r.models, m)
		}
	}
	if r.logger != nil {
		r.logger.Info("unregistered backend", "name", name)
	}
}

// createBackend creates a backend based on type.
func createBackend(cfg BackendConfig) Backend {
	switch cfg.Type {
	case OpenAIName, "vllm", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case GeminiName:
		return NewGeminiClient(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case MockName:
		return NewMockBackend()
	default:
		return nil
	}
}
