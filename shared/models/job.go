package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Job is a unit of work performed for a client
type Job struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID     uuid.UUID      `json:"business_id" gorm:"type:uuid;not null;index"`
	ClientID       uuid.UUID      `json:"client_id" gorm:"type:uuid;not null;index"`
	AssignedUserID *uuid.UUID     `json:"assigned_user_id,omitempty" gorm:"type:uuid;index"`
	Title          string         `json:"title" gorm:"not null"`
	Description    string         `json:"description"`
	Status         JobStatus      `json:"status" gorm:"type:varchar(20);not null;default:pending"`
	ScheduledDate  *time.Time     `json:"scheduled_date,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	EstimatedHours float64        `json:"estimated_hours"`
	Notes          string         `json:"notes"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	Client       *Client `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	AssignedUser *User   `json:"assigned_user,omitempty" gorm:"foreignKey:AssignedUserID"`
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobScheduled  JobStatus = "scheduled"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobScheduled, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// Open reports whether work on the job is still outstanding
func (s JobStatus) Open() bool {
	return s == JobPending || s == JobScheduled || s == JobInProgress
}

func (Job) TableName() string {
	return "jobs"
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	return nil
}

func (j *Job) SetBusinessID(id uuid.UUID) {
	j.BusinessID = id
}

// SetStatus moves the job to status, stamping completion time
func (j *Job) SetStatus(status JobStatus, now time.Time) {
	j.Status = status
	if status == JobCompleted {
		j.CompletedAt = &now
	} else {
		j.CompletedAt = nil
	}
}
