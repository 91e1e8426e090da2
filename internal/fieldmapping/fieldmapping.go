// Package fieldmapping reads tenant custom field declarations and stores
// custom values against unified records as entity/attribute/value rows.
package fieldmapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/store"
	"github.com/mit-27/panora-sync/internal/unified"
)

type Service struct {
	store  store.Store
	mode   string
	logger *zap.Logger
}

// NewService builds the service. mode is config.EAVModeUpsert or config.EAVModeAppend;
// anything else falls back to upsert.
func NewService(s store.Store, mode string, logger *zap.Logger) *Service {
	if mode != config.EAVModeAppend {
		mode = config.EAVModeUpsert
	}
	return &Service{store: s, mode: mode, logger: logger}
}

// WithStore returns a copy bound to another store, typically a transaction view
func (s *Service) WithStore(tx store.Store) *Service {
	clone := *s
	clone.store = tx
	return &clone
}

func (s *Service) Mode() string {
	return s.mode
}

// CustomFieldMappings lists the custom fields the linked user's tenant declared
// for (provider, objectType). Declarations without a remote field key are skipped.
func (s *Service) CustomFieldMappings(ctx context.Context, provider string, linkedUserID uuid.UUID, objectType string) ([]unified.CustomFieldMapping, error) {
	user, err := s.store.GetLinkedUser(ctx, linkedUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked user %s: %w", linkedUserID, err)
	}

	attrs, err := s.store.ListAttributes(ctx, store.AttributeFilter{
		ProjectID:  user.ProjectID,
		ObjectType: objectType,
		Source:     provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}

	mappings := make([]unified.CustomFieldMapping, 0, len(attrs))
	for _, attr := range attrs {
		if attr.RemoteID == "" {
			continue
		}
		mappings = append(mappings, unified.CustomFieldMapping{
			Slug:     attr.Slug,
			RemoteID: attr.RemoteID,
			DataType: attr.DataType,
		})
	}
	return mappings, nil
}

// RemoteFieldNames returns the provider field keys an adapter should request
func RemoteFieldNames(mappings []unified.CustomFieldMapping) []string {
	names := make([]string, 0, len(mappings))
	for _, m := range mappings {
		names = append(names, m.RemoteID)
	}
	return names
}

type AttachInput struct {
	OwnerID    uuid.UUID
	ObjectType string
	// Values is keyed by slug
	Values    map[string]any
	Source    string
	ProjectID uuid.UUID
}

// AttachCustomValues stores every non-empty value whose slug has a declared attribute.
// Undeclared slugs are dropped. In upsert mode the owner keeps one entity and one value
// per attribute; in append mode every call writes a fresh entity and value set.
func (s *Service) AttachCustomValues(ctx context.Context, in AttachInput) (int, error) {
	slugs := make([]string, 0, len(in.Values))
	for slug, value := range in.Values {
		if !IsEmpty(value) {
			slugs = append(slugs, slug)
		}
	}
	if len(slugs) == 0 {
		return 0, nil
	}
	sort.Strings(slugs)

	filter := store.AttributeFilter{ProjectID: in.ProjectID, ObjectType: in.ObjectType, Source: in.Source}

	var entity *models.Entity
	written := 0
	for _, slug := range slugs {
		attr, err := s.store.FindAttribute(ctx, filter, slug)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("Dropping undeclared custom field",
				zap.String("slug", slug),
				zap.String("source", in.Source),
				zap.String("object_type", in.ObjectType),
			)
			continue
		}
		if err != nil {
			return written, fmt.Errorf("failed to find attribute %q: %w", slug, err)
		}

		data, err := encodeValue(in.Values[slug])
		if err != nil {
			return written, fmt.Errorf("failed to encode custom field %q: %w", slug, err)
		}

		if entity == nil {
			entity, err = s.entityFor(ctx, in.OwnerID)
			if err != nil {
				return written, err
			}
		}

		if err := s.writeValue(ctx, entity.ID, attr.ID, data); err != nil {
			return written, fmt.Errorf("failed to store custom field %q: %w", slug, err)
		}
		written++
	}
	return written, nil
}

func (s *Service) entityFor(ctx context.Context, ownerID uuid.UUID) (*models.Entity, error) {
	if s.mode == config.EAVModeUpsert {
		entity, err := s.store.FindEntityByOwner(ctx, ownerID)
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to find entity for owner %s: %w", ownerID, err)
		}
	}

	entity := &models.Entity{ID: uuid.New(), OwnerID: ownerID}
	if err := s.store.CreateEntity(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to create entity for owner %s: %w", ownerID, err)
	}
	return entity, nil
}

func (s *Service) writeValue(ctx context.Context, entityID, attributeID uuid.UUID, data string) error {
	if s.mode == config.EAVModeUpsert {
		existing, err := s.store.FindValue(ctx, entityID, attributeID)
		if err == nil {
			if existing.Data == data {
				return nil
			}
			existing.Data = data
			existing.UpdatedAt = time.Now().UTC()
			return s.store.UpdateValue(ctx, existing)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return s.store.CreateValue(ctx, &models.Value{
		ID:          uuid.New(),
		EntityID:    entityID,
		AttributeID: attributeID,
		Data:        data,
	})
}

// IsEmpty reports nil, empty strings and empty maps, slices or arrays
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return v.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func encodeValue(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
