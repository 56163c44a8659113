package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/middleware"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// bindJSON decodes the request body or answers 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request format")
		return false
	}
	return true
}

func parseIDParam(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param("id"))
}

// idParam parses a path id. Malformed ids answer 404 like unknown ones.
func idParam(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := parseIDParam(c)
	if err != nil {
		utils.NotFoundResponse(c, what+" not found")
		return uuid.Nil, false
	}
	return id, true
}

// page reads limit and offset query parameters
func page(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// optionalUUID parses a possibly empty id from a request body
func optionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// respondError maps service errors onto the response envelope
func (s *Server) respondError(c *gin.Context, err error, what string) {
	var verr *auth.ValidationError
	switch {
	case errors.Is(err, tenancy.ErrNotFound):
		utils.NotFoundResponse(c, what+" not found")
	case errors.Is(err, auth.ErrBusinessNotFound):
		utils.NotFoundResponse(c, "Business not found")
	case errors.As(err, &verr):
		utils.BadRequestResponse(c, verr.Msg)
	case errors.Is(err, auth.ErrPinTaken):
		utils.ConflictResponse(c, "PIN already in use")
	case errors.Is(err, auth.ErrUsernameTaken):
		utils.ConflictResponse(c, "Username already taken")
	case errors.Is(err, auth.ErrEmailTaken):
		utils.ConflictResponse(c, "Email already registered")
	case errors.Is(err, auth.ErrInvalidRole):
		utils.BadRequestResponse(c, "Invalid role. Must be 'admin' or 'member'")
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		utils.InternalServerErrorResponse(c, "Internal server error")
	}
}

// publish emits an activity event. Failures are logged; the request still succeeds.
func (s *Server) publish(c *gin.Context, tc *models.TenantContext, eventType, entityID, summary string, payload interface{}) {
	e := events.New(tc.BusinessID, tc.UserID, eventType, entityID, summary, payload)
	if err := s.events.Publish(c.Request.Context(), e); err != nil {
		s.log.WithFields(logrus.Fields{
			"event_type":  eventType,
			"business_id": tc.BusinessID,
		}).WithError(err).Warn("failed to publish event")
	}
}

// scope resolves the tenant scope of the request, answering 401 when there is none
func (s *Server) scope(c *gin.Context) (*tenancy.Scope, *models.TenantContext, bool) {
	return middleware.MustScope(c, s.db)
}

// parseDate accepts RFC 3339 timestamps and plain dates
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func optionalDate(v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := parseDate(*v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// retryAfterSeconds renders a Retry-After header value, rounding up
func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
