// Package providers implements a generic factory registry for pluggable
// model backends (embedding, reranking), with alias resolution and a
// default fallback.
package providers

import (
	"fmt"
	"strings"
)

// Factory builds a provider instance of type P.
type Factory[P any] func() (P, error)

// Registry maps normalized provider keys to factories, with a required
// default key that Create falls back to when an unknown key is requested.
type Registry[P any] struct {
	defaultKey string
	factories  map[string]Factory[P]
	canonical  map[string]string
}

// NewRegistry builds a Registry whose Create falls back to defaultKey when
// given an unregistered or empty key.
func NewRegistry[P any](defaultKey string) (*Registry[P], error) {
	normalized := normalize(defaultKey)
	if normalized == "" {
		return nil, fmt.Errorf("providers.NewRegistry: default key must be non-empty")
	}
	return &Registry[P]{
		defaultKey: normalized,
		factories:  make(map[string]Factory[P]),
		canonical:  make(map[string]string),
	}, nil
}

// Register associates key and its aliases with factory.
func (r *Registry[P]) Register(key string, factory Factory[P], aliases ...string) {
	canonical := normalize(key)
	keys := append([]string{canonical}, aliases...)
	for _, k := range keys {
		nk := normalize(k)
		if nk == "" {
			continue
		}
		r.factories[nk] = factory
		r.canonical[nk] = canonical
	}
}

// Resolution carries the outcome of Create: the resolved canonical key, and
// the originally requested key when a fallback to the default occurred.
type Resolution struct {
	ResolvedKey string
	FallbackFrom string
}

// Create instantiates the provider registered under key, falling back to
// the default when key is empty or unregistered.
func (r *Registry[P]) Create(key string) (P, Resolution, error) {
	requested := normalize(key)
	lookup := requested
	if lookup == "" {
		lookup = r.defaultKey
	}

	factory, ok := r.factories[lookup]
	fallbackFrom := ""
	if !ok {
		fallbackFrom = lookup
		factory, ok = r.factories[r.defaultKey]
		lookup = r.defaultKey
		if !ok {
			var zero P
			return zero, Resolution{}, fmt.Errorf("providers.Create: default provider %q is not registered", r.defaultKey)
		}
	}

	instance, err := factory()
	if err != nil {
		var zero P
		return zero, Resolution{}, fmt.Errorf("providers.Create: %w", err)
	}

	if fallbackFrom == r.defaultKey && requested == "" {
		fallbackFrom = ""
	}
	return instance, Resolution{ResolvedKey: r.canonical[lookup], FallbackFrom: fallbackFrom}, nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
