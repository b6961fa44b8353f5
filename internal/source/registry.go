// Package source holds the extractor registry. Extractors are the per-board
// plugins the coordinator fans out over.
package source

import (
	"fmt"
	"sync"

	"github.com/jobscout/jobscout/internal/scout"
)

// Registry is a concurrency-safe set of extractors keyed by source ID.
// All preserves registration order so dispatch order is deterministic.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]scout.Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]scout.Extractor)}
}

// Register adds an extractor. Duplicate IDs are rejected so a misconfigured
// build fails loudly at startup instead of silently shadowing a source.
func (r *Registry) Register(ex scout.Extractor) error {
	if ex == nil {
		return fmt.Errorf("extractor is required")
	}
	id := ex.ID()
	if id == "" {
		return fmt.Errorf("extractor ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("extractor %q already registered", id)
	}
	r.byID[id] = ex
	r.order = append(r.order, id)
	return nil
}

// Get looks up one extractor by ID.
func (r *Registry) Get(id string) (scout.Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.byID[id]
	return ex, ok
}

// All returns every extractor in registration order.
func (r *Registry) All() []scout.Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]scout.Extractor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the registered source IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
