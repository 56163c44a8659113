package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a customer of a business
type Client struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID uuid.UUID      `json:"business_id" gorm:"type:uuid;not null;index"`
	Name       string         `json:"name" gorm:"not null"`
	Email      string         `json:"email"`
	Phone      string         `json:"phone"`
	Address    string         `json:"address"`
	Notes      string         `json:"notes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Client) TableName() string {
	return "clients"
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Client) SetBusinessID(id uuid.UUID) {
	c.BusinessID = id
}

// Service is a billable offering with a default rate
type Service struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID  uuid.UUID      `json:"business_id" gorm:"type:uuid;not null;index"`
	Name        string         `json:"name" gorm:"not null"`
	Description string         `json:"description"`
	Rate        float64        `json:"rate" gorm:"not null;default:0"`
	Unit        string         `json:"unit" gorm:"default:'each'"`
	IsActive    bool           `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Service) TableName() string {
	return "services"
}

func (s *Service) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *Service) SetBusinessID(id uuid.UUID) {
	s.BusinessID = id
}
