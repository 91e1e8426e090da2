// Package mapping translates between provider payloads and unified records.
package mapping

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mit-27/panora-sync/internal/unified"
)

type UnifyInput struct {
	Provider     string
	LinkedUserID uuid.UUID
	CustomFields []unified.CustomFieldMapping
}

type DesunifyInput struct {
	Provider     string
	LinkedUserID uuid.UUID
	CustomFields []unified.CustomFieldMapping
}

// Mapper converts one provider's payloads for one object type.
// Unify must not write anything; cross-reference lookups are read-only.
type Mapper[U unified.Object] interface {
	Unify(ctx context.Context, raw []unified.RawRecord, in UnifyInput) ([]U, error)
	Desunify(ctx context.Context, record U, in DesunifyInput) (unified.RawRecord, error)
}

// UnsupportedError names the (vertical, object, provider) triple that has no mapper
type UnsupportedError struct {
	Vertical string
	Object   string
	Provider string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("mapping: no mapper for %s.%s from provider %q", e.Vertical, e.Object, e.Provider)
}

// Registry holds the mappers of one (vertical, object) keyed by provider slug
type Registry[U unified.Object] struct {
	vertical string
	object   string

	mu      sync.RWMutex
	mappers map[string]Mapper[U]
}

func NewRegistry[U unified.Object](vertical, object string) *Registry[U] {
	return &Registry[U]{
		vertical: vertical,
		object:   object,
		mappers:  make(map[string]Mapper[U]),
	}
}

func (r *Registry[U]) Vertical() string { return r.vertical }
func (r *Registry[U]) Object() string   { return r.object }

func (r *Registry[U]) Register(provider string, mapper Mapper[U]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[provider] = mapper
}

func (r *Registry[U]) Resolve(provider string) (Mapper[U], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mapper, ok := r.mappers[provider]
	return mapper, ok
}

func (r *Registry[U]) Unify(ctx context.Context, raw []unified.RawRecord, in UnifyInput) ([]U, error) {
	mapper, ok := r.Resolve(in.Provider)
	if !ok {
		return nil, r.unsupported(in.Provider)
	}
	return mapper.Unify(ctx, raw, in)
}

func (r *Registry[U]) Desunify(ctx context.Context, record U, in DesunifyInput) (unified.RawRecord, error) {
	mapper, ok := r.Resolve(in.Provider)
	if !ok {
		return nil, r.unsupported(in.Provider)
	}
	return mapper.Desunify(ctx, record, in)
}

func (r *Registry[U]) unsupported(provider string) error {
	return &UnsupportedError{Vertical: r.vertical, Object: r.object, Provider: provider}
}
