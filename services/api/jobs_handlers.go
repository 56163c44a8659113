package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// JobRequest creates or replaces a job
type JobRequest struct {
	ClientID       string           `json:"client_id" binding:"required"`
	AssignedUserID *string          `json:"assigned_user_id"`
	Title          string           `json:"title" binding:"required"`
	Description    string           `json:"description"`
	Status         models.JobStatus `json:"status"`
	ScheduledDate  *string          `json:"scheduled_date"`
	EstimatedHours float64          `json:"estimated_hours"`
	Notes          string           `json:"notes"`
}

// apply validates the request against the scope and copies it onto job. Ids of other
// businesses are reported as not found.
func (r JobRequest) apply(ctx context.Context, scope *tenancy.Scope, job *models.Job, now func() time.Time) error {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return &auth.ValidationError{Msg: "title is required"}
	}
	if r.Status != "" && !r.Status.Valid() {
		return &auth.ValidationError{Msg: fmt.Sprintf("invalid status %q", r.Status)}
	}
	clientID, err := uuid.Parse(r.ClientID)
	if err != nil {
		return &auth.ValidationError{Msg: "invalid client_id"}
	}
	if err := requireOwned(ctx, scope, &models.Client{}, clientID); err != nil {
		return err
	}
	assigned, err := optionalUUID(r.AssignedUserID)
	if err != nil {
		return &auth.ValidationError{Msg: "invalid assigned_user_id"}
	}
	if assigned != nil {
		if err := requireOwned(ctx, scope, &models.User{}, *assigned); err != nil {
			return err
		}
	}
	scheduled, err := optionalDate(r.ScheduledDate)
	if err != nil {
		return &auth.ValidationError{Msg: "invalid scheduled_date"}
	}

	job.ClientID = clientID
	job.AssignedUserID = assigned
	job.Title = title
	job.Description = r.Description
	job.ScheduledDate = scheduled
	job.EstimatedHours = r.EstimatedHours
	job.Notes = r.Notes
	if r.Status != "" && r.Status != job.Status {
		job.SetStatus(r.Status, now())
	}
	return nil
}

// requireOwned answers tenancy.ErrNotFound unless the business owns the row
func requireOwned(ctx context.Context, scope *tenancy.Scope, model interface{}, id uuid.UUID) error {
	ok, err := scope.Exists(ctx, model, id)
	if err != nil {
		return err
	}
	if !ok {
		return tenancy.ErrNotFound
	}
	return nil
}

// JobFilter narrows job listings
type JobFilter struct {
	Status   string
	ClientID string
	UserID   string
}

func listJobs(ctx context.Context, scope *tenancy.Scope, f JobFilter, limit, offset int) ([]models.Job, int64, error) {
	query := scope.Query(ctx).Model(&models.Job{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if id, err := uuid.Parse(f.ClientID); err == nil {
		query = query.Where("client_id = ?", id)
	}
	if id, err := uuid.Parse(f.UserID); err == nil {
		query = query.Where("assigned_user_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var jobs []models.Job
	err := query.Preload("Client").Preload("AssignedUser").
		Order("scheduled_date IS NULL, scheduled_date, created_at DESC").
		Limit(limit).Offset(offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *Server) createJob(c *gin.Context, scope *tenancy.Scope, tc *models.TenantContext, req JobRequest) (*models.Job, error) {
	ctx := c.Request.Context()
	job := &models.Job{Status: models.JobPending}
	if err := req.apply(ctx, scope, job, s.now); err != nil {
		return nil, err
	}
	if err := scope.Create(ctx, job); err != nil {
		return nil, err
	}
	s.publish(c, tc, events.JobCreated, job.ID.String(), "Job "+job.Title+" created", nil)
	return job, nil
}

func (s *Server) handleListJobs(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	jobs, total, err := listJobs(c.Request.Context(), scope, JobFilter{
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
		UserID:   c.Query("assigned_user_id"),
	}, limit, offset)
	if err != nil {
		s.respondError(c, err, "Jobs")
		return
	}
	utils.OKResponse(c, "Jobs retrieved", gin.H{"jobs": jobs, "total": total})
}

func (s *Server) handleCreateJob(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req JobRequest
	if !bindJSON(c, &req) {
		return
	}
	job, err := s.createJob(c, scope, tc, req)
	if err != nil {
		s.respondError(c, err, "Client")
		return
	}
	utils.CreatedResponse(c, "Job created", job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Job")
	if !ok {
		return
	}
	var job models.Job
	if err := scope.Get(c.Request.Context(), &job, id, "Client", "AssignedUser"); err != nil {
		s.respondError(c, err, "Job")
		return
	}
	utils.OKResponse(c, "Job retrieved", job)
}

func (s *Server) handleUpdateJob(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Job")
	if !ok {
		return
	}
	var req JobRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var job models.Job
	if err := scope.Get(ctx, &job, id); err != nil {
		s.respondError(c, err, "Job")
		return
	}
	previous := job.Status
	if err := req.apply(ctx, scope, &job, s.now); err != nil {
		s.respondError(c, err, "Job")
		return
	}
	if err := scope.Update(ctx, id, &job); err != nil {
		s.respondError(c, err, "Job")
		return
	}
	if job.Status != previous {
		s.publish(c, tc, events.JobStatusChanged, job.ID.String(),
			fmt.Sprintf("Job %s moved from %s to %s", job.Title, previous, job.Status),
			gin.H{"from": previous, "to": job.Status})
	}
	utils.OKResponse(c, "Job updated", job)
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Job")
	if !ok {
		return
	}
	if err := scope.Delete(c.Request.Context(), &models.Job{}, id); err != nil {
		s.respondError(c, err, "Job")
		return
	}
	utils.OKResponse(c, "Job deleted", nil)
}
