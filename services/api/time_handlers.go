package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

const activeEntryPrefix = "bizworx:active:"

// ClockInRequest starts a time entry, optionally against a job
type ClockInRequest struct {
	JobID *string `json:"job_id"`
	Notes string  `json:"notes"`
}

// ClockOutRequest closes the running entry
type ClockOutRequest struct {
	Notes *string `json:"notes"`
}

// activeEntry finds the running entry of userID. The Redis pointer is only a hint; the
// row is always read through the scope.
func (s *Server) activeEntry(ctx context.Context, scope *tenancy.Scope, userID uuid.UUID) (*models.TimeEntry, error) {
	var entry models.TimeEntry
	if cached, err := s.redis.Get(ctx, activeEntryPrefix+userID.String()).Result(); err == nil {
		if id, err := uuid.Parse(cached); err == nil {
			err := scope.Query(ctx).Where("id = ? AND user_id = ? AND status = ?", id, userID, models.TimeEntryActive).
				First(&entry).Error
			if err == nil {
				return &entry, nil
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.WithError(err).Warn("active entry cache unavailable")
	}

	err := scope.Query(ctx).Where("user_id = ? AND status = ?", userID, models.TimeEntryActive).
		Order("clock_in DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Server) handleClockIn(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req ClockInRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	jobID, err := optionalUUID(req.JobID)
	if err != nil {
		s.respondError(c, &auth.ValidationError{Msg: "invalid job_id"}, "Job")
		return
	}
	if jobID != nil {
		if err := requireOwned(ctx, scope, &models.Job{}, *jobID); err != nil {
			s.respondError(c, err, "Job")
			return
		}
	}

	active, err := s.activeEntry(ctx, scope, *tc.UserID)
	if err != nil {
		s.respondError(c, err, "Time entry")
		return
	}
	if active != nil {
		utils.ConflictResponse(c, "Already clocked in")
		return
	}

	entry := &models.TimeEntry{
		UserID:  *tc.UserID,
		JobID:   jobID,
		Status:  models.TimeEntryActive,
		ClockIn: s.now(),
		Notes:   req.Notes,
	}
	if err := scope.Create(ctx, entry); err != nil {
		s.respondError(c, err, "Time entry")
		return
	}
	if err := s.redis.Set(ctx, activeEntryPrefix+tc.UserID.String(), entry.ID.String(), s.cfg.SessionTTL).Err(); err != nil {
		s.log.WithError(err).Warn("failed to cache active entry")
	}

	s.publish(c, tc, events.TimeClockIn, entry.ID.String(), "Clocked in", nil)
	utils.CreatedResponse(c, "Clocked in", entry)
}

func (s *Server) handleClockOut(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req ClockOutRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	entry, err := s.activeEntry(ctx, scope, *tc.UserID)
	if err != nil {
		s.respondError(c, err, "Time entry")
		return
	}
	if entry == nil {
		utils.ConflictResponse(c, "Not clocked in")
		return
	}

	entry.ClockOutAt(s.now())
	values := map[string]interface{}{
		"status":    entry.Status,
		"clock_out": entry.ClockOut,
		"duration":  entry.Duration,
	}
	if req.Notes != nil {
		entry.Notes = *req.Notes
		values["notes"] = entry.Notes
	}
	if err := scope.UpdateColumns(ctx, &models.TimeEntry{}, entry.ID, values); err != nil {
		s.respondError(c, err, "Time entry")
		return
	}
	if err := s.redis.Del(ctx, activeEntryPrefix+tc.UserID.String()).Err(); err != nil {
		s.log.WithError(err).Warn("failed to clear active entry")
	}

	s.publish(c, tc, events.TimeClockOut, entry.ID.String(),
		fmt.Sprintf("Clocked out after %d minutes", entry.Duration/60), nil)
	utils.OKResponse(c, "Clocked out", entry)
}

func (s *Server) handleActiveEntry(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	entry, err := s.activeEntry(c.Request.Context(), scope, *tc.UserID)
	if err != nil {
		s.respondError(c, err, "Time entry")
		return
	}
	utils.OKResponse(c, "Active entry", gin.H{"active": entry != nil, "entry": entry})
}

// handleListTimeEntries shows members their own entries; managers see everyone's
func (s *Server) handleListTimeEntries(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}

	query := scope.Query(c.Request.Context()).Model(&models.TimeEntry{})
	switch {
	case tc.CanManage():
		if id, err := uuid.Parse(c.Query("user_id")); err == nil {
			query = query.Where("user_id = ?", id)
		}
	case tc.UserID != nil:
		query = query.Where("user_id = ?", *tc.UserID)
	default:
		utils.ForbiddenResponse(c, "Insufficient permissions")
		return
	}
	if from, err := parseDate(c.Query("from")); err == nil {
		query = query.Where("clock_in >= ?", from)
	}
	if to, err := parseDate(c.Query("to")); err == nil {
		query = query.Where("clock_in < ?", to)
	}

	limit, offset := page(c)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.respondError(c, err, "Time entries")
		return
	}
	var entries []models.TimeEntry
	if err := query.Preload("User").Preload("Job").Order("clock_in DESC").
		Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		s.respondError(c, err, "Time entries")
		return
	}
	utils.OKResponse(c, "Time entries retrieved", gin.H{"entries": entries, "total": total})
}
