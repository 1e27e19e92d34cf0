package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/lectern/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSTT] for an
// input.stt name nobody registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a speech-to-text provider from its config entry.
type STTFactory func(ProviderEntry) (stt.Provider, error)

// Registry resolves the provider names used in input.stt and
// input.stt_fallback to constructors. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]STTFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stt: make(map[string]STTFactory)}
}

// RegisterSTT binds name to factory, replacing any earlier binding.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	r.stt[name] = factory
	r.mu.Unlock()
}

// CreateSTT builds the provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create stt/%s: %w", entry.Name, err)
	}
	return p, nil
}

// STTNames lists the registered names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.stt))
}
