package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ProviderFactory builds a Provider for a concrete model. Factories run per
// lookup so a caller can pin a non-default model.
type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry routes a configured provider name ("ollama", "openrouter") to
// its factory. Both the API process and the worker resolve their provider
// through it, so the two always agree on what a name means.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalizeName(name)] = f
}

func (r *Registry) Get(ctx context.Context, name, model string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ai: provider %q is not registered", name)
	}
	return f(ctx, model)
}
