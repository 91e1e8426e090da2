// Package adapter fetches and creates records in provider APIs.
package adapter

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mit-27/panora-sync/internal/unified"
)

// Connection is the resolved credential an adapter calls the provider with
type Connection struct {
	ID           uuid.UUID
	LinkedUserID uuid.UUID
	Provider     string
	Vertical     string
	BaseURL      string
	AccessToken  string
}

// Adapter reads one object type from one provider
type Adapter interface {
	FetchRemote(ctx context.Context, conn Connection, extraFields []string) ([]unified.RawRecord, error)
}

// Creator is implemented by adapters that support the write path
type Creator interface {
	CreateRemote(ctx context.Context, conn Connection, record unified.RawRecord) (unified.RawRecord, error)
}

type Key struct {
	Vertical string
	Object   string
	Provider string
}

// Registry maps (vertical, object, provider) to an adapter.
// A miss is not an error: the provider may not support that object yet.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Key]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Key]Adapter)}
}

func (r *Registry) Register(key Key, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[key] = adapter
}

func (r *Registry) Resolve(vertical, object, provider string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[Key{Vertical: vertical, Object: object, Provider: provider}]
	return adapter, ok
}

// Keys lists every registered key
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	return keys
}
