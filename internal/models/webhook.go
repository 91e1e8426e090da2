package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Delivery attempt statuses. Success and dead are terminal.
const (
	DeliveryStatusQueued    = "queued"
	DeliveryStatusProcessed = "processed"
	DeliveryStatusSuccess   = "success"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusDead      = "dead"
)

// WebhookEndpoint is owned by tenant configuration and read-only here
type WebhookEndpoint struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	URL         string         `gorm:"not null" json:"url"`
	Secret      string         `gorm:"not null" json:"-"`
	Description string         `json:"description"`
	Scope       pq.StringArray `gorm:"type:text[];not null" json:"scope"`
	Active      bool           `gorm:"not null;default:true" json:"active"`
	LastUpdate  *time.Time     `json:"last_update"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (WebhookEndpoint) TableName() string {
	return "webhook_endpoints"
}

// Subscribes reports whether the endpoint scope contains the event type
func (e WebhookEndpoint) Subscribes(eventType string) bool {
	return slices.Contains([]string(e.Scope), eventType)
}

// WebhookPayload is created once per matching endpoint per event
type WebhookPayload struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	EventID   uuid.UUID      `gorm:"type:uuid;not null" json:"event_id"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null" json:"data"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (WebhookPayload) TableName() string {
	return "webhook_payloads"
}

type WebhookDeliveryAttempt struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"project_id"`
	EndpointID     uuid.UUID  `gorm:"type:uuid;not null" json:"endpoint_id"`
	PayloadID      uuid.UUID  `gorm:"type:uuid;not null" json:"payload_id"`
	EventID        uuid.UUID  `gorm:"type:uuid;not null" json:"event_id"`
	EventType      string     `gorm:"not null" json:"event_type"`
	Status         string     `gorm:"not null;index" json:"status"`
	AttemptCount   int        `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts    int        `gorm:"not null" json:"max_attempts"`
	NextRetry      *time.Time `gorm:"index" json:"next_retry"`
	LastError      *string    `json:"last_error"`
	ResponseStatus *int       `json:"response_status"`
	ResponseBody   *string    `json:"response_body"`
	Timestamp      time.Time  `gorm:"not null" json:"timestamp"`
	UpdatedAt      time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (WebhookDeliveryAttempt) TableName() string {
	return "webhook_delivery_attempts"
}

func (a WebhookDeliveryAttempt) IsTerminal() bool {
	return a.Status == DeliveryStatusSuccess || a.Status == DeliveryStatusDead
}

// WebhookDeliveryLog records one HTTP try of a delivery attempt
type WebhookDeliveryLog struct {
	ID              int64     `gorm:"primary_key;autoIncrement" json:"id"`
	AttemptID       uuid.UUID `gorm:"type:uuid;not null;index" json:"attempt_id"`
	AttemptNo       int       `gorm:"not null" json:"attempt_no"`
	StartedAt       time.Time `gorm:"not null" json:"started_at"`
	FinishedAt      time.Time `gorm:"not null" json:"finished_at"`
	HTTPStatus      *int      `json:"http_status"`
	LatencyMs       int       `gorm:"not null" json:"latency_ms"`
	ResponseSummary *string   `json:"response_summary"`
	Error           *string   `json:"error"`
	CreatedAt       time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (WebhookDeliveryLog) TableName() string {
	return "webhook_delivery_logs"
}

// DeliveryJob is the message published to the delivery queue
type DeliveryJob struct {
	AttemptID string `json:"attempt_id"`
}
