package prompts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Resolver resolves prompts with directory overrides.
// Resolution order: override file > embedded default.
type Resolver struct {
	store    *Store
	embedded map[string]EmbeddedPrompt
	mu       sync.RWMutex
	cache    templateCache
	logger   *slog.Logger
}

// NewResolver creates a new prompt resolver. store may be nil.
func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    store,
		embedded: make(map[string]EmbeddedPrompt),
		logger:   logger,
	}
}

// Register registers an embedded prompt.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Resolve returns the override for key if one exists, otherwise the
// embedded default.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	override, err := r.store.Get(key)
	if err != nil {
		r.logger.Warn("failed to check prompt override", "key", key, "error", err)
	} else if override != nil {
		return &ResolvedPrompt{
			Key:        key,
			Text:       override.Text,
			Variables:  ExtractVariables(override.Text),
			IsOverride: true,
			Hash:       HashText(override.Text),
		}, nil
	}

	r.mu.RLock()
	embedded, ok := r.embedded[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}
	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
		Hash:      embedded.Hash,
	}, nil
}

// Render resolves key and executes it with data.
func (r *Resolver) Render(key string, data any) (string, error) {
	p, err := r.Resolve(key)
	if err != nil {
		return "", err
	}
	t, err := r.cache.get(key, p.Text)
	if err != nil {
		return "", err
	}
	return execute(t, data)
}

// GetEmbedded returns the embedded default for a key.
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// ExportAll writes every embedded prompt into the override store so it can
// be edited. Existing overrides are kept unless force is set.
func (r *Resolver) ExportAll(force bool) (int, error) {
	if r.store == nil || r.store.Dir() == "" {
		return 0, fmt.Errorf("override directory not configured")
	}
	n := 0
	for _, p := range r.AllEmbedded() {
		if !force {
			existing, err := r.store.Get(p.Key)
			if err != nil {
				return n, err
			}
			if existing != nil {
				continue
			}
		}
		if err := r.store.Set(p.Key, p.Text); err != nil {
			return n, fmt.Errorf("failed to export prompt %s: %w", p.Key, err)
		}
		n++
	}
	r.logger.Info("exported prompts", "count", n, "dir", r.store.Dir())
	return n, nil
}
