package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UnifiedRecord stores the canonical attributes of one object of any type.
// (object_type, remote_id, origin_platform, linked_user_id) is the reconciliation key.
type UnifiedRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ObjectType     string         `gorm:"not null;uniqueIndex:idx_unified_records_reconciliation_key" json:"object_type"`
	RemoteID       string         `gorm:"not null;uniqueIndex:idx_unified_records_reconciliation_key" json:"remote_id"`
	OriginPlatform string         `gorm:"not null;uniqueIndex:idx_unified_records_reconciliation_key" json:"origin_platform"`
	LinkedUserID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_unified_records_reconciliation_key" json:"linked_user_id"`
	Data           datatypes.JSON `gorm:"type:jsonb;not null" json:"data"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	ModifiedAt     time.Time      `gorm:"not null;default:now()" json:"modified_at"`
}

func (UnifiedRecord) TableName() string {
	return "unified_records"
}

// RemoteData is the raw provider payload behind one unified record
type RemoteData struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	RecordID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"record_id"`
	ObjectType string         `gorm:"not null" json:"object_type"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null" json:"data"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (RemoteData) TableName() string {
	return "remote_data"
}
