package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConnectionStatusValid   = "valid"
	ConnectionStatusInvalid = "invalid"
)

// Project is a tenant of the platform
type Project struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Project) TableName() string {
	return "projects"
}

// LinkedUser is one end-customer account inside a project
type LinkedUser struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID          uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	OriginOrganization string    `json:"origin_organization"`
	OriginUser         string    `json:"origin_user"`
	CreatedAt          time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (LinkedUser) TableName() string {
	return "linked_users"
}

// Connection is an authorized link between a linked user and one provider in one vertical.
// AccessToken is opaque here; decryption belongs to the credential resolver.
type Connection struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID    uuid.UUID      `gorm:"type:uuid;not null" json:"project_id"`
	LinkedUserID uuid.UUID      `gorm:"type:uuid;not null" json:"linked_user_id"`
	ProviderSlug string         `gorm:"not null" json:"provider_slug"`
	Vertical     string         `gorm:"not null" json:"vertical"`
	AccessToken  string         `json:"-"`
	RefreshToken string         `json:"-"`
	AccountURL   string         `json:"account_url"`
	Status       string         `gorm:"not null;default:'valid'" json:"status"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Connection) TableName() string {
	return "connections"
}

func (c Connection) IsValid() bool {
	return c.Status == ConnectionStatusValid
}
