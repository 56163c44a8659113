package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a team member of a business; authenticates with a 4-digit PIN
type User struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID  uuid.UUID  `json:"business_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_users_business_username"`
	Username    string     `json:"username" gorm:"not null;uniqueIndex:idx_users_business_username"`
	PinHash     string     `json:"-" gorm:"not null"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	Role        UserRole   `json:"role" gorm:"type:varchar(20);not null;default:member"`
	HourlyRate  float64    `json:"hourly_rate"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Business *Business `json:"-" gorm:"foreignKey:BusinessID"`
}

type UserRole string

const (
	// RoleOwner is held by a session opened with the business credentials. It is never
	// stored on a User row.
	RoleOwner  UserRole = "owner"
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// Valid reports whether the role can be assigned to a team member
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// CanManage reports whether the role may administer the business (team, API key)
func (r UserRole) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) SetBusinessID(id uuid.UUID) {
	u.BusinessID = id
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
