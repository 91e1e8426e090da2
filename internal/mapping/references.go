package mapping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/store"
)

// References resolves identifiers between provider and internal space.
// A lookup that fails for any reason is reported as a miss.
type References interface {
	InternalID(ctx context.Context, objectType, remoteID, provider string, linkedUserID uuid.UUID) (string, bool)
	RemoteID(ctx context.Context, internalID string) (string, bool)
}

// StoreReferences answers reference lookups from persisted unified records
type StoreReferences struct {
	records store.RecordStore
	logger  *zap.Logger
}

func NewStoreReferences(records store.RecordStore, logger *zap.Logger) *StoreReferences {
	return &StoreReferences{records: records, logger: logger}
}

func (r *StoreReferences) InternalID(ctx context.Context, objectType, remoteID, provider string, linkedUserID uuid.UUID) (string, bool) {
	if remoteID == "" {
		return "", false
	}
	record, err := r.records.FindRecord(ctx, store.RecordKey{
		ObjectType:     objectType,
		RemoteID:       remoteID,
		OriginPlatform: provider,
		LinkedUserID:   linkedUserID,
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("Reference lookup failed",
				zap.String("object_type", objectType),
				zap.String("remote_id", remoteID),
				zap.String("provider", provider),
				zap.Error(err),
			)
		}
		return "", false
	}
	return record.ID.String(), true
}

func (r *StoreReferences) RemoteID(ctx context.Context, internalID string) (string, bool) {
	id, err := uuid.Parse(internalID)
	if err != nil {
		return "", false
	}
	record, err := r.records.GetRecord(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("Reference lookup failed",
				zap.String("internal_id", internalID),
				zap.Error(err),
			)
		}
		return "", false
	}
	return record.RemoteID, true
}

// NoReferences resolves nothing
type NoReferences struct{}

func (NoReferences) InternalID(context.Context, string, string, string, uuid.UUID) (string, bool) {
	return "", false
}

func (NoReferences) RemoteID(context.Context, string) (string, bool) {
	return "", false
}
