package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for the pipeline package.
var (
	// ErrGeneratorAlreadyRegistered is returned when registering a duplicate generator.
	ErrGeneratorAlreadyRegistered = errors.New("generator already registered")

	// ErrGeneratorNotFound is returned when no generator has the requested name.
	ErrGeneratorNotFound = errors.New("generator not found")
)

// Registry holds the generator variants available to a run.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	order      []string // Maintains registration order
}

// NewRegistry creates a registry holding gens. Duplicate names keep the
// first registration.
func NewRegistry(gens ...Generator) *Registry {
	r := &Registry{
		generators: make(map[string]Generator),
		order:      make([]string, 0, len(gens)),
	}
	for _, g := range gens {
		_ = r.Register(g)
	}
	return r
}

// Register adds a generator to the registry.
// Returns an error if a generator with the same name is already registered.
func (r *Registry) Register(g Generator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := g.Name()
	if _, exists := r.generators[name]; exists {
		return fmt.Errorf("%w: %s", ErrGeneratorAlreadyRegistered, name)
	}

	r.generators[name] = g
	r.order = append(r.order, name)
	return nil
}

// Get returns a generator by name.
func (r *Registry) Get(name string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.generators[name]
	return g, ok
}

// Lookup is Get with an error naming the known variants.
func (r *Registry) Lookup(name string) (Generator, error) {
	if g, ok := r.Get(name); ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w: %q (known: %v)", ErrGeneratorNotFound, name, r.Names())
}

// Names returns all generator names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
