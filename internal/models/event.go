package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"

	DirectionPull = "pull"
	DirectionPush = "push"
)

// Event is the immutable audit record of one pipeline action
type Event struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	LinkedUserID uuid.UUID      `gorm:"type:uuid;not null" json:"linked_user_id"`
	Type         string         `gorm:"not null" json:"type"`
	Provider     string         `gorm:"not null" json:"provider"`
	Direction    string         `gorm:"not null" json:"direction"`
	Status       string         `gorm:"not null" json:"status"`
	RecordCount  int            `gorm:"not null;default:0" json:"record_count"`
	Payload      datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	Timestamp    time.Time      `gorm:"not null" json:"timestamp"`
}

func (Event) TableName() string {
	return "events"
}
