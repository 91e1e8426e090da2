// Package reconcile persists unified records idempotently, keyed by
// (object type, remote id, origin platform, linked user).
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/mit-27/panora-sync/internal/fieldmapping"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/store"
	"github.com/mit-27/panora-sync/internal/unified"
)

// MissingOriginIDError aborts a batch holding a record without a remote id
type MissingOriginIDError struct {
	ObjectType string
	Index      int
}

func (e *MissingOriginIDError) Error() string {
	return fmt.Sprintf("reconcile: %s record at index %d has no remote id", e.ObjectType, e.Index)
}

type UpsertInput struct {
	ObjectType   string
	ProjectID    uuid.UUID
	LinkedUserID uuid.UUID
	Origin       string
	Records      []unified.Object
	// Raw holds the provider payload of Records[i] at index i, or is empty
	Raw []unified.RawRecord
}

type PersistedRecord struct {
	ID             uuid.UUID
	ObjectType     string
	RemoteID       string
	OriginPlatform string
	Created        bool
	// Data is the stored canonical attributes after the merge
	Data          map[string]any
	FieldMappings map[string]any
}

// Unified renders the record the way webhook consumers receive it
func (p PersistedRecord) Unified() map[string]any {
	out := make(map[string]any, len(p.Data)+4)
	for k, v := range p.Data {
		out[k] = v
	}
	out["id"] = p.ID.String()
	out["remote_id"] = p.RemoteID
	out["remote_platform"] = p.OriginPlatform
	if len(p.FieldMappings) > 0 {
		out["field_mappings"] = p.FieldMappings
	}
	return out
}

type Reconciler struct {
	store  store.Store
	fields *fieldmapping.Service
	logger *zap.Logger
}

// NewReconciler builds a reconciler. fields may be nil, in which case custom values are not stored.
func NewReconciler(s store.Store, fields *fieldmapping.Service, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: s, fields: fields, logger: logger}
}

// Upsert writes the whole batch in one transaction and returns one
// PersistedRecord per input record, in input order. Any failure rolls back the batch.
func (r *Reconciler) Upsert(ctx context.Context, in UpsertInput) ([]PersistedRecord, error) {
	if len(in.Raw) != 0 && len(in.Raw) != len(in.Records) {
		return nil, fmt.Errorf("reconcile: %d raw payloads for %d records", len(in.Raw), len(in.Records))
	}
	for i, record := range in.Records {
		if record == nil || record.GetRemoteID() == "" {
			return nil, &MissingOriginIDError{ObjectType: in.ObjectType, Index: i}
		}
	}
	if len(in.Records) == 0 {
		return nil, nil
	}

	var persisted []PersistedRecord
	err := r.store.Transaction(ctx, func(tx store.Store) error {
		persisted = make([]PersistedRecord, 0, len(in.Records))

		var fields *fieldmapping.Service
		if r.fields != nil {
			fields = r.fields.WithStore(tx)
		}

		for i, record := range in.Records {
			var raw unified.RawRecord
			if len(in.Raw) > 0 {
				raw = in.Raw[i]
			}
			p, err := r.upsertOne(ctx, tx, fields, in, record, raw)
			if err != nil {
				return fmt.Errorf("failed to upsert %s %q: %w", in.ObjectType, record.GetRemoteID(), err)
			}
			persisted = append(persisted, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Upserted records",
		zap.String("object_type", in.ObjectType),
		zap.String("origin", in.Origin),
		zap.String("linked_user_id", in.LinkedUserID.String()),
		zap.Int("count", len(persisted)),
	)
	return persisted, nil
}

func (r *Reconciler) upsertOne(ctx context.Context, tx store.Store, fields *fieldmapping.Service, in UpsertInput, record unified.Object, raw unified.RawRecord) (PersistedRecord, error) {
	incoming, err := ToData(record)
	if err != nil {
		return PersistedRecord{}, err
	}

	key := store.RecordKey{
		ObjectType:     in.ObjectType,
		RemoteID:       record.GetRemoteID(),
		OriginPlatform: in.Origin,
		LinkedUserID:   in.LinkedUserID,
	}

	result := PersistedRecord{
		ObjectType:     in.ObjectType,
		RemoteID:       key.RemoteID,
		OriginPlatform: in.Origin,
		FieldMappings:  record.GetFieldMappings(),
	}

	existing, err := tx.FindRecord(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		data := SparseMerge(nil, incoming)
		encoded, err := json.Marshal(data)
		if err != nil {
			return PersistedRecord{}, fmt.Errorf("failed to encode record data: %w", err)
		}
		row := &models.UnifiedRecord{
			ID:             uuid.New(),
			ObjectType:     key.ObjectType,
			RemoteID:       key.RemoteID,
			OriginPlatform: key.OriginPlatform,
			LinkedUserID:   key.LinkedUserID,
			Data:           datatypes.JSON(encoded),
		}
		if err := tx.CreateRecord(ctx, row); err != nil {
			return PersistedRecord{}, fmt.Errorf("failed to create record: %w", err)
		}
		result.ID = row.ID
		result.Created = true
		result.Data = data

	case err != nil:
		return PersistedRecord{}, fmt.Errorf("failed to look up record: %w", err)

	default:
		stored := map[string]any{}
		if len(existing.Data) > 0 {
			if err := json.Unmarshal(existing.Data, &stored); err != nil {
				return PersistedRecord{}, fmt.Errorf("failed to decode stored record %s: %w", existing.ID, err)
			}
		}
		merged := SparseMerge(stored, incoming)
		encoded, err := json.Marshal(merged)
		if err != nil {
			return PersistedRecord{}, fmt.Errorf("failed to encode record data: %w", err)
		}
		existing.Data = datatypes.JSON(encoded)
		existing.ModifiedAt = time.Now().UTC()
		if err := tx.UpdateRecord(ctx, existing); err != nil {
			return PersistedRecord{}, fmt.Errorf("failed to update record %s: %w", existing.ID, err)
		}
		result.ID = existing.ID
		result.Data = merged
	}

	if fields != nil && len(result.FieldMappings) > 0 {
		if _, err := fields.AttachCustomValues(ctx, fieldmapping.AttachInput{
			OwnerID:    result.ID,
			ObjectType: in.ObjectType,
			Values:     result.FieldMappings,
			Source:     in.Origin,
			ProjectID:  in.ProjectID,
		}); err != nil {
			return PersistedRecord{}, fmt.Errorf("failed to attach custom values: %w", err)
		}
	}

	if raw != nil {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return PersistedRecord{}, fmt.Errorf("failed to encode remote data: %w", err)
		}
		if err := tx.UpsertRemoteData(ctx, &models.RemoteData{
			ID:         uuid.New(),
			RecordID:   result.ID,
			ObjectType: in.ObjectType,
			Data:       datatypes.JSON(encoded),
		}); err != nil {
			return PersistedRecord{}, fmt.Errorf("failed to store remote data: %w", err)
		}
	}

	return result, nil
}

// ToData renders the canonical attributes of a record, without its
// remote id and custom field values
func ToData(record unified.Object) (map[string]any, error) {
	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode unified record: %w", err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(encoded, &data); err != nil {
		return nil, fmt.Errorf("failed to decode unified record: %w", err)
	}
	delete(data, "remote_id")
	delete(data, "field_mappings")
	return data, nil
}
