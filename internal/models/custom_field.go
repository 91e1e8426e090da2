package models

import (
	"time"

	"github.com/google/uuid"
)

// Attribute declares a tenant custom field for one object type and one provider.
// Slug is the tenant-facing name, RemoteID the provider field key.
type Attribute struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	ObjectType string    `gorm:"not null" json:"object_type"`
	Slug       string    `gorm:"not null" json:"slug"`
	RemoteID   string    `json:"remote_id"`
	DataType   string    `gorm:"not null;default:'string'" json:"data_type"`
	Source     string    `gorm:"not null" json:"source"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Attribute) TableName() string {
	return "attributes"
}

// Entity anchors the custom field values of one unified record
type Entity struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Entity) TableName() string {
	return "entities"
}

type Value struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index" json:"entity_id"`
	AttributeID uuid.UUID `gorm:"type:uuid;not null" json:"attribute_id"`
	Data        string    `gorm:"not null" json:"data"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Value) TableName() string {
	return "attribute_values"
}
