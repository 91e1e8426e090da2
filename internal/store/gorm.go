package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mit-27/panora-sync/internal/database"
	"github.com/mit-27/panora-sync/internal/models"
)

// GormStore is the Postgres-backed Store
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for health checks and shutdown
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	return database.HealthCheck(ctx, s.db)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first loads a single row and maps gorm.ErrRecordNotFound to ErrNotFound
func first[T any](db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var row T
	if err := db.Where(query, args...).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// Records

func (s *GormStore) FindRecord(ctx context.Context, key RecordKey) (*models.UnifiedRecord, error) {
	return first[models.UnifiedRecord](s.db.WithContext(ctx),
		"object_type = ? AND remote_id = ? AND origin_platform = ? AND linked_user_id = ?",
		key.ObjectType, key.RemoteID, key.OriginPlatform, key.LinkedUserID)
}

func (s *GormStore) GetRecord(ctx context.Context, id uuid.UUID) (*models.UnifiedRecord, error) {
	return first[models.UnifiedRecord](s.db.WithContext(ctx), "id = ?", id)
}

func (s *GormStore) ListRecords(ctx context.Context, filter RecordFilter) ([]models.UnifiedRecord, error) {
	query := s.db.WithContext(ctx).Model(&models.UnifiedRecord{})
	if filter.ObjectType != "" {
		query = query.Where("object_type = ?", filter.ObjectType)
	}
	if filter.LinkedUserID != uuid.Nil {
		query = query.Where("linked_user_id = ?", filter.LinkedUserID)
	}
	var records []models.UnifiedRecord
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormStore) CreateRecord(ctx context.Context, record *models.UnifiedRecord) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *GormStore) UpdateRecord(ctx context.Context, record *models.UnifiedRecord) error {
	return s.db.WithContext(ctx).Model(&models.UnifiedRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"data":        record.Data,
			"modified_at": record.ModifiedAt,
		}).Error
}

func (s *GormStore) UpsertRemoteData(ctx context.Context, data *models.RemoteData) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"object_type", "data", "updated_at"}),
	}).Create(data).Error
}

func (s *GormStore) GetRemoteData(ctx context.Context, recordID uuid.UUID) (*models.RemoteData, error) {
	return first[models.RemoteData](s.db.WithContext(ctx), "record_id = ?", recordID)
}

// Custom fields

func (s *GormStore) CreateAttribute(ctx context.Context, attr *models.Attribute) error {
	return s.db.WithContext(ctx).Create(attr).Error
}

func (s *GormStore) ListAttributes(ctx context.Context, filter AttributeFilter) ([]models.Attribute, error) {
	var attrs []models.Attribute
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND object_type = ? AND source = ?", filter.ProjectID, filter.ObjectType, filter.Source).
		Order("created_at ASC").
		Find(&attrs).Error
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

func (s *GormStore) FindAttribute(ctx context.Context, filter AttributeFilter, slug string) (*models.Attribute, error) {
	return first[models.Attribute](s.db.WithContext(ctx),
		"project_id = ? AND object_type = ? AND source = ? AND slug = ?",
		filter.ProjectID, filter.ObjectType, filter.Source, slug)
}

func (s *GormStore) FindEntityByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Entity, error) {
	var entity models.Entity
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entity, nil
}

func (s *GormStore) CreateEntity(ctx context.Context, entity *models.Entity) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

func (s *GormStore) FindValue(ctx context.Context, entityID, attributeID uuid.UUID) (*models.Value, error) {
	return first[models.Value](s.db.WithContext(ctx), "entity_id = ? AND attribute_id = ?", entityID, attributeID)
}

func (s *GormStore) CreateValue(ctx context.Context, value *models.Value) error {
	return s.db.WithContext(ctx).Create(value).Error
}

func (s *GormStore) UpdateValue(ctx context.Context, value *models.Value) error {
	return s.db.WithContext(ctx).Model(&models.Value{}).
		Where("id = ?", value.ID).
		Updates(map[string]interface{}{
			"data":       value.Data,
			"updated_at": value.UpdatedAt,
		}).Error
}

func (s *GormStore) ListValues(ctx context.Context, ownerID uuid.UUID) ([]models.Value, error) {
	var values []models.Value
	err := s.db.WithContext(ctx).
		Joins("JOIN entities ON entities.id = attribute_values.entity_id").
		Where("entities.owner_id = ?", ownerID).
		Order("attribute_values.created_at ASC").
		Find(&values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Tenancy

func (s *GormStore) CreateProject(ctx context.Context, project *models.Project) error {
	return s.db.WithContext(ctx).Create(project).Error
}

func (s *GormStore) CreateLinkedUser(ctx context.Context, user *models.LinkedUser) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *GormStore) ListLinkedUsers(ctx context.Context, projectID *uuid.UUID) ([]models.LinkedUser, error) {
	query := s.db.WithContext(ctx).Model(&models.LinkedUser{})
	if projectID != nil {
		query = query.Where("project_id = ?", *projectID)
	}
	var users []models.LinkedUser
	if err := query.Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormStore) GetLinkedUser(ctx context.Context, id uuid.UUID) (*models.LinkedUser, error) {
	return first[models.LinkedUser](s.db.WithContext(ctx), "id = ?", id)
}

func (s *GormStore) FindConnection(ctx context.Context, linkedUserID uuid.UUID, provider, vertical string) (*models.Connection, error) {
	return first[models.Connection](s.db.WithContext(ctx),
		"linked_user_id = ? AND provider_slug = ? AND vertical = ?", linkedUserID, provider, vertical)
}

func (s *GormStore) SaveConnection(ctx context.Context, conn *models.Connection) error {
	existing, err := s.FindConnection(ctx, conn.LinkedUserID, conn.ProviderSlug, conn.Vertical)
	switch {
	case errors.Is(err, ErrNotFound):
		if conn.ID == uuid.Nil {
			conn.ID = uuid.New()
		}
		return s.db.WithContext(ctx).Create(conn).Error
	case err != nil:
		return err
	}

	conn.ID = existing.ID
	conn.CreatedAt = existing.CreatedAt
	conn.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Save(conn).Error
}

// Events

func (s *GormStore) CreateEvent(ctx context.Context, event *models.Event) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *GormStore) ListEvents(ctx context.Context, projectID uuid.UUID) ([]models.Event, error) {
	var events []models.Event
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("timestamp ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Webhooks

func (s *GormStore) CreateEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error {
	return s.db.WithContext(ctx).Create(endpoint).Error
}

func (s *GormStore) ListActiveEndpoints(ctx context.Context, projectID uuid.UUID) ([]models.WebhookEndpoint, error) {
	var endpoints []models.WebhookEndpoint
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND active = ?", projectID, true).
		Order("created_at ASC").
		Find(&endpoints).Error
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}

func (s *GormStore) GetEndpoint(ctx context.Context, id uuid.UUID) (*models.WebhookEndpoint, error) {
	return first[models.WebhookEndpoint](s.db.WithContext(ctx), "id = ?", id)
}

func (s *GormStore) CreateDelivery(ctx context.Context, payload *models.WebhookPayload, attempt *models.WebhookDeliveryAttempt) error {
	if payload.ID == uuid.Nil {
		payload.ID = uuid.New()
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	attempt.PayloadID = payload.ID
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payload).Error; err != nil {
			return fmt.Errorf("failed to create webhook payload: %w", err)
		}
		if err := tx.Create(attempt).Error; err != nil {
			return fmt.Errorf("failed to create delivery attempt: %w", err)
		}
		return nil
	})
}

func (s *GormStore) GetPayload(ctx context.Context, id uuid.UUID) (*models.WebhookPayload, error) {
	return first[models.WebhookPayload](s.db.WithContext(ctx), "id = ?", id)
}

func (s *GormStore) GetAttempt(ctx context.Context, id uuid.UUID) (*models.WebhookDeliveryAttempt, error) {
	return first[models.WebhookDeliveryAttempt](s.db.WithContext(ctx), "id = ?", id)
}

func (s *GormStore) ClaimAttempt(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.WebhookDeliveryAttempt{}).
		Where("id = ? AND (status = ? OR (status = ? AND (next_retry IS NULL OR next_retry <= ?)))",
			id, models.DeliveryStatusQueued, models.DeliveryStatusFailed, at).
		Updates(map[string]interface{}{
			"status":     models.DeliveryStatusProcessed,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) UpdateAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error {
	return s.db.WithContext(ctx).Model(&models.WebhookDeliveryAttempt{}).
		Where("id = ?", attempt.ID).
		Updates(map[string]interface{}{
			"status":          attempt.Status,
			"attempt_count":   attempt.AttemptCount,
			"next_retry":      attempt.NextRetry,
			"last_error":      attempt.LastError,
			"response_status": attempt.ResponseStatus,
			"response_body":   attempt.ResponseBody,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (s *GormStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]models.WebhookDeliveryAttempt, error) {
	query := s.db.WithContext(ctx).
		Where("project_id = ?", filter.ProjectID).
		Order("timestamp DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var attempts []models.WebhookDeliveryAttempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (s *GormStore) ListDueAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.WebhookDeliveryAttempt, error) {
	query := s.db.WithContext(ctx).
		Where("(status = ? AND next_retry IS NOT NULL AND next_retry <= ?) OR (status = ? AND timestamp <= ?)",
			models.DeliveryStatusFailed, cutoff, models.DeliveryStatusQueued, cutoff).
		Order("COALESCE(next_retry, timestamp) ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var attempts []models.WebhookDeliveryAttempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (s *GormStore) CreateDeliveryLog(ctx context.Context, log *models.WebhookDeliveryLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

func (s *GormStore) ListDeliveryLogs(ctx context.Context, attemptID uuid.UUID) ([]models.WebhookDeliveryLog, error) {
	var logs []models.WebhookDeliveryLog
	err := s.db.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("attempt_no ASC").Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
