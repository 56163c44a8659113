package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimeEntry is one clock-in/clock-out span of a team member
type TimeEntry struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID uuid.UUID       `json:"business_id" gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	JobID      *uuid.UUID      `json:"job_id,omitempty" gorm:"type:uuid;index"`
	Status     TimeEntryStatus `json:"status" gorm:"type:varchar(20);not null;default:active"`
	ClockIn    time.Time       `json:"clock_in"`
	ClockOut   *time.Time      `json:"clock_out"`
	Duration   int             `json:"duration"` // in seconds
	Notes      string          `json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Job  *Job  `json:"job,omitempty" gorm:"foreignKey:JobID"`
}

type TimeEntryStatus string

const (
	TimeEntryActive    TimeEntryStatus = "active"
	TimeEntryCompleted TimeEntryStatus = "completed"
)

func (TimeEntry) TableName() string {
	return "time_entries"
}

func (t *TimeEntry) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *TimeEntry) SetBusinessID(id uuid.UUID) {
	t.BusinessID = id
}

// IsActive checks if the member is still clocked in
func (t *TimeEntry) IsActive() bool {
	return t.Status == TimeEntryActive
}

// GetDuration returns the entry duration in seconds
func (t *TimeEntry) GetDuration() int {
	if t.ClockOut != nil {
		return int(t.ClockOut.Sub(t.ClockIn).Seconds())
	}
	return int(time.Since(t.ClockIn).Seconds())
}

// ClockOutAt closes the entry
func (t *TimeEntry) ClockOutAt(now time.Time) {
	t.ClockOut = &now
	t.Status = TimeEntryCompleted
	t.Duration = t.GetDuration()
}
