package settings

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository. Safe for concurrent use.
type MemoryRepository struct {
	mu        sync.RWMutex
	defaults  *Layer
	overrides map[layerKey]*Layer
}

type layerKey struct {
	department, division string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{overrides: make(map[layerKey]*Layer)}
}

func (r *MemoryRepository) Override(_ context.Context, departmentID, divisionID string) (*Layer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overrides[layerKey{departmentID, divisionID}], nil
}

func (r *MemoryRepository) Defaults(_ context.Context) (*Layer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults, nil
}

// SetDefaults replaces the global layer.
func (r *MemoryRepository) SetDefaults(_ context.Context, layer *Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = layer
	return nil
}

// SetOverride stores layer under its DepartmentID/DivisionID.
func (r *MemoryRepository) SetOverride(_ context.Context, layer *Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[layerKey{layer.DepartmentID, layer.DivisionID}] = layer
	return nil
}

// RemoveOverride deletes an override so the next level applies again.
func (r *MemoryRepository) RemoveOverride(_ context.Context, departmentID, divisionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, layerKey{departmentID, divisionID})
	return nil
}
