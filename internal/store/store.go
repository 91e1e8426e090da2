package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mit-27/panora-sync/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing
var ErrNotFound = errors.New("store: not found")

// RecordKey is the reconciliation key of a unified record
type RecordKey struct {
	ObjectType     string
	RemoteID       string
	OriginPlatform string
	LinkedUserID   uuid.UUID
}

type RecordFilter struct {
	ObjectType   string
	LinkedUserID uuid.UUID
}

type AttributeFilter struct {
	ProjectID  uuid.UUID
	ObjectType string
	Source     string
}

type AttemptFilter struct {
	ProjectID uuid.UUID
	Limit     int
	Offset    int
}

type RecordStore interface {
	FindRecord(ctx context.Context, key RecordKey) (*models.UnifiedRecord, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*models.UnifiedRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]models.UnifiedRecord, error)
	CreateRecord(ctx context.Context, record *models.UnifiedRecord) error
	UpdateRecord(ctx context.Context, record *models.UnifiedRecord) error
	UpsertRemoteData(ctx context.Context, data *models.RemoteData) error
	GetRemoteData(ctx context.Context, recordID uuid.UUID) (*models.RemoteData, error)
}

type FieldMappingStore interface {
	CreateAttribute(ctx context.Context, attr *models.Attribute) error
	ListAttributes(ctx context.Context, filter AttributeFilter) ([]models.Attribute, error)
	FindAttribute(ctx context.Context, filter AttributeFilter, slug string) (*models.Attribute, error)
	FindEntityByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Entity, error)
	CreateEntity(ctx context.Context, entity *models.Entity) error
	FindValue(ctx context.Context, entityID, attributeID uuid.UUID) (*models.Value, error)
	CreateValue(ctx context.Context, value *models.Value) error
	UpdateValue(ctx context.Context, value *models.Value) error
	// ListValues returns every value stored under any entity of the owner
	ListValues(ctx context.Context, ownerID uuid.UUID) ([]models.Value, error)
}

type TenantStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	CreateLinkedUser(ctx context.Context, user *models.LinkedUser) error
	// ListLinkedUsers lists the linked users of one project, or of every project when projectID is nil
	ListLinkedUsers(ctx context.Context, projectID *uuid.UUID) ([]models.LinkedUser, error)
	GetLinkedUser(ctx context.Context, id uuid.UUID) (*models.LinkedUser, error)
	FindConnection(ctx context.Context, linkedUserID uuid.UUID, provider, vertical string) (*models.Connection, error)
	// SaveConnection updates the live connection for (linked user, provider, vertical) in place, creating it if absent
	SaveConnection(ctx context.Context, conn *models.Connection) error
}

type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, projectID uuid.UUID) ([]models.Event, error)
}

type WebhookStore interface {
	CreateEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error
	ListActiveEndpoints(ctx context.Context, projectID uuid.UUID) ([]models.WebhookEndpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (*models.WebhookEndpoint, error)
	CreateDelivery(ctx context.Context, payload *models.WebhookPayload, attempt *models.WebhookDeliveryAttempt) error
	GetPayload(ctx context.Context, id uuid.UUID) (*models.WebhookPayload, error)
	GetAttempt(ctx context.Context, id uuid.UUID) (*models.WebhookDeliveryAttempt, error)
	// ClaimAttempt moves the attempt to processed if it is queued, or failed with
	// next_retry at or before now. Early, terminal and in-flight attempts are left alone.
	ClaimAttempt(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	UpdateAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]models.WebhookDeliveryAttempt, error)
	// ListDueAttempts returns failed attempts whose next_retry is at or before the cutoff and
	// queued attempts created at or before it, oldest first
	ListDueAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.WebhookDeliveryAttempt, error)
	CreateDeliveryLog(ctx context.Context, log *models.WebhookDeliveryLog) error
	ListDeliveryLogs(ctx context.Context, attemptID uuid.UUID) ([]models.WebhookDeliveryLog, error)
}

// Store is the persistence surface of the sync pipeline
type Store interface {
	RecordStore
	FieldMappingStore
	TenantStore
	EventStore
	WebhookStore

	// Transaction runs fn against a transactional view; any error rolls the whole view back
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
