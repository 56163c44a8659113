package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLog is one entry of a business's activity feed
type ActivityLog struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	EventID    string     `json:"event_id" gorm:"uniqueIndex;not null"`
	BusinessID uuid.UUID  `json:"business_id" gorm:"type:uuid;not null;index"`
	Type       string     `json:"type" gorm:"not null;index"`
	EntityID   string     `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty" gorm:"type:uuid"`
	Summary    string     `json:"summary"`
	OccurredAt time.Time  `json:"occurred_at" gorm:"index"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *ActivityLog) SetBusinessID(id uuid.UUID) {
	a.BusinessID = id
}

type NotificationStatus string

const (
	NotificationPending           NotificationStatus = "pending"
	NotificationResolved          NotificationStatus = "resolved"
	NotificationPermanentlyFailed NotificationStatus = "permanently_failed"
)

// FailedNotification is an outbound email that could not be delivered and awaits retry
type FailedNotification struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	EventID      string             `json:"event_id" gorm:"not null;index"`
	BusinessID   uuid.UUID          `json:"business_id" gorm:"type:uuid;not null;index"`
	EventType    string             `json:"event_type" gorm:"not null"`
	Payload      string             `json:"payload" gorm:"type:text"`
	ErrorMessage string             `json:"error_message" gorm:"not null"`
	RetryCount   int                `json:"retry_count" gorm:"default:0"`
	Status       NotificationStatus `json:"status" gorm:"type:varchar(20);default:pending;index"`
	NextRetryAt  *time.Time         `json:"next_retry_at,omitempty" gorm:"index"`
	ResolvedAt   *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (FailedNotification) TableName() string {
	return "failed_notifications"
}

func (f *FailedNotification) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
