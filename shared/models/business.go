package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business is the tenant: every other record hangs off a business id
type Business struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name            string         `json:"name" gorm:"not null"`
	Email           string         `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash    string         `json:"-" gorm:"not null"`
	Phone           string         `json:"phone"`
	Address         string         `json:"address"`
	APIKeyHash      *string        `json:"-" gorm:"uniqueIndex"`
	APIKeyLast4     string         `json:"-"`
	APIKeyCreatedAt *time.Time     `json:"-"`
	IsActive        bool           `json:"is_active" gorm:"default:true"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	Users []User `json:"users,omitempty" gorm:"foreignKey:BusinessID"`
}

// TableName returns the table name for the Business model
func (Business) TableName() string {
	return "businesses"
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// HasAPIKey reports whether a key is currently issued for the business
func (b *Business) HasAPIKey() bool {
	return b.APIKeyHash != nil && *b.APIKeyHash != ""
}

// APIKeyStatus is the non-secret view of a business API key
type APIKeyStatus struct {
	Active    bool       `json:"active"`
	Last4     string     `json:"last4,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (b *Business) APIKeyStatus() APIKeyStatus {
	if !b.HasAPIKey() {
		return APIKeyStatus{}
	}
	return APIKeyStatus{Active: true, Last4: b.APIKeyLast4, CreatedAt: b.APIKeyCreatedAt}
}
