package sieve

import (
	"fmt"
	"sort"
	"sync"
)

// SchemaID identifies a schema within a Registry.
// IDs are the schema names; names must already be unique for prompt rendering
// to make sense, so a synthetic key would add nothing.
type SchemaID string

// Registry holds named schemas defined at configuration time.
//
// Schemas are immutable once defined and Define is expected to run during
// setup, so the read path is effectively lock-free contention-wise: concurrent
// extractions share the registry freely.
type Registry struct {
	mu      sync.RWMutex
	schemas map[SchemaID]*Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[SchemaID]*Schema)}
}

// Define stores a schema and returns its ID.
// Defining a second schema under the same name fails with ErrSchemaExists;
// redefinition would silently change the contract of in-flight extractions.
func (r *Registry) Define(s *Schema) (SchemaID, error) {
	id := SchemaID(s.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[id]; exists {
		return "", fmt.Errorf("schema %q: %w", s.Name(), ErrSchemaExists)
	}
	r.schemas[id] = s
	return id, nil
}

// Get returns the schema for an ID, or ErrSchemaNotFound.
func (r *Registry) Get(id SchemaID) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[id]
	if !ok {
		return nil, fmt.Errorf("schema %q: %w", id, ErrSchemaNotFound)
	}
	return s, nil
}

// MustGet is Get that panics on a missing schema, for setup code.
func (r *Registry) MustGet(id SchemaID) *Schema {
	s, err := r.Get(id)
	if err != nil {
		panic(err)
	}
	return s
}

// IDs returns all defined schema IDs in sorted order.
func (r *Registry) IDs() []SchemaID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]SchemaID, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of defined schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}
