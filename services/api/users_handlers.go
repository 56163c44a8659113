package main

import (
	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// UserRequest creates or updates a team member
type UserRequest struct {
	Username   *string          `json:"username"`
	Pin        *string          `json:"pin"`
	FirstName  *string          `json:"first_name"`
	LastName   *string          `json:"last_name"`
	Email      *string          `json:"email"`
	Role       *models.UserRole `json:"role"`
	HourlyRate *float64         `json:"hourly_rate"`
	IsActive   *bool            `json:"is_active"`
}

func (r UserRequest) input() auth.UserInput {
	return auth.UserInput{
		Username:   r.Username,
		Pin:        r.Pin,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Role:       r.Role,
		HourlyRate: r.HourlyRate,
		IsActive:   r.IsActive,
	}
}

func (s *Server) handleListUsers(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}

	query := scope.Query(c.Request.Context()).Order("first_name, last_name")
	if c.Query("include_inactive") != "true" {
		query = query.Where("is_active = ?", true)
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		s.respondError(c, err, "Users")
		return
	}
	utils.OKResponse(c, "Users retrieved", users)
}

func (s *Server) handleCreateUser(c *gin.Context) {
	_, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req UserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.auth.CreateUser(c.Request.Context(), tc.BusinessID, req.input())
	if err != nil {
		s.respondError(c, err, "User")
		return
	}
	utils.CreatedResponse(c, "User created", user)
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	_, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "User")
	if !ok {
		return
	}
	var req UserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := s.auth.UpdateUser(c.Request.Context(), tc.BusinessID, id, req.input())
	if err != nil {
		s.respondError(c, err, "User")
		return
	}
	utils.OKResponse(c, "User updated", user)
}

// handleDeactivateUser keeps the row so time entries stay attributable
func (s *Server) handleDeactivateUser(c *gin.Context) {
	_, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "User")
	if !ok {
		return
	}
	if tc.UserID != nil && *tc.UserID == id {
		utils.BadRequestResponse(c, "You cannot deactivate yourself")
		return
	}

	inactive := false
	if _, err := s.auth.UpdateUser(c.Request.Context(), tc.BusinessID, id, auth.UserInput{IsActive: &inactive}); err != nil {
		s.respondError(c, err, "User")
		return
	}
	utils.OKResponse(c, "User deactivated", nil)
}
