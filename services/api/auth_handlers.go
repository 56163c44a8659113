package main

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/middleware"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/session"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// RegisterRequest creates a business account
type RegisterRequest struct {
	BusinessName   string `json:"business_name" binding:"required"`
	Email          string `json:"email" binding:"required"`
	Password       string `json:"password" binding:"required,min=8"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	OwnerUsername  string `json:"owner_username"`
	OwnerFirstName string `json:"owner_first_name"`
	OwnerLastName  string `json:"owner_last_name"`
	OwnerPin       string `json:"owner_pin"`
}

// BusinessLoginRequest represents the business login request
type BusinessLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PinLoginRequest represents the team member login request
type PinLoginRequest struct {
	Pin string `json:"pin" binding:"required"`
}

// SessionView is what clients learn about their session
type SessionView struct {
	BusinessID   string          `json:"business_id"`
	BusinessName string          `json:"business_name"`
	UserID       *string         `json:"user_id,omitempty"`
	Role         models.UserRole `json:"role"`
	ExpiresAt    string          `json:"expires_at"`
}

func sessionView(d *session.Data) SessionView {
	v := SessionView{
		BusinessID:   d.BusinessID.String(),
		BusinessName: d.BusinessName,
		Role:         d.Role,
		ExpiresAt:    d.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if d.UserID != nil {
		id := d.UserID.String()
		v.UserID = &id
	}
	return v
}

func (s *Server) handleRegisterBusiness(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	business, err := s.auth.RegisterBusiness(c.Request.Context(), auth.RegisterInput{
		BusinessName:   req.BusinessName,
		Email:          req.Email,
		Password:       req.Password,
		Phone:          req.Phone,
		Address:        req.Address,
		OwnerUsername:  req.OwnerUsername,
		OwnerFirstName: req.OwnerFirstName,
		OwnerLastName:  req.OwnerLastName,
		OwnerPin:       req.OwnerPin,
	})
	if err != nil {
		s.respondError(c, err, "Business")
		return
	}

	data, err := s.sessions.Start(c, session.Identity{
		BusinessID:   business.ID,
		BusinessName: business.Name,
		Role:         models.RoleOwner,
	})
	if err != nil {
		s.respondError(c, err, "Session")
		return
	}

	utils.CreatedResponse(c, "Business registered", gin.H{
		"business": business,
		"session":  sessionView(data),
	})
}

func (s *Server) handleBusinessLogin(c *gin.Context) {
	var req BusinessLoginRequest
	if !bindJSON(c, &req) {
		return
	}

	business, err := s.auth.AuthenticateBusiness(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.AuthFailure("password")
			utils.UnauthorizedResponse(c, "Invalid credentials")
			return
		}
		s.respondError(c, err, "Business")
		return
	}

	// any session presented with this request is discarded, whoever it belonged to
	data, err := s.sessions.Start(c, session.Identity{
		BusinessID:   business.ID,
		BusinessName: business.Name,
		Role:         models.RoleOwner,
	})
	if err != nil {
		s.respondError(c, err, "Session")
		return
	}

	s.log.WithField("business_id", business.ID).Info("business logged in")
	utils.OKResponse(c, "Login successful", gin.H{
		"business": business,
		"session":  sessionView(data),
	})
}

func (s *Server) handlePinLogin(c *gin.Context) {
	var req PinLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	tc, ok := middleware.GetTenantFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}
	ctx := c.Request.Context()

	limitKey := tc.BusinessID.String() + ":" + c.ClientIP()
	allowed, err := s.pinLimits.Allow(ctx, limitKey)
	if err != nil {
		s.respondError(c, err, "Login")
		return
	}
	if !allowed {
		c.Header("Retry-After", retryAfterSeconds(s.pinLimits.RetryAfter(ctx, limitKey)))
		utils.TooManyRequestsResponse(c, "Too many PIN attempts, try again later")
		return
	}

	user, err := s.auth.AuthenticatePin(ctx, tc.BusinessID, req.Pin)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPin) {
			metrics.AuthFailure("pin")
			utils.UnauthorizedResponse(c, "Invalid PIN")
			return
		}
		s.respondError(c, err, "User")
		return
	}
	if err := s.pinLimits.Reset(ctx, limitKey); err != nil {
		s.log.WithError(err).Warn("failed to reset pin attempts")
	}
	business, err := s.auth.GetBusiness(ctx, tc.BusinessID)
	if err != nil {
		s.respondError(c, err, "Business")
		return
	}

	data, err := s.sessions.Start(c, session.Identity{
		BusinessID:   business.ID,
		BusinessName: business.Name,
		UserID:       &user.ID,
		Role:         user.Role,
	})
	if err != nil {
		s.respondError(c, err, "Session")
		return
	}

	actor := *tc
	actor.BusinessName = business.Name
	actor.UserID = &user.ID
	s.publish(c, &actor, events.TeamMemberLoggedIn, user.ID.String(), user.FullName()+" signed in", nil)

	utils.OKResponse(c, "Login successful", gin.H{
		"user":    user,
		"session": sessionView(data),
	})
}

// handleUserLogout ends the team member's turn; the device stays signed in as the business
func (s *Server) handleUserLogout(c *gin.Context) {
	tc, ok := middleware.GetTenantFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}

	business, err := s.auth.GetBusiness(c.Request.Context(), tc.BusinessID)
	if err != nil {
		s.respondError(c, err, "Business")
		return
	}

	data, err := s.sessions.Start(c, session.Identity{
		BusinessID:   business.ID,
		BusinessName: business.Name,
		Role:         models.RoleOwner,
	})
	if err != nil {
		s.respondError(c, err, "Session")
		return
	}
	utils.OKResponse(c, "User logged out", gin.H{"session": sessionView(data)})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.sessions.Destroy(c); err != nil {
		s.respondError(c, err, "Session")
		return
	}
	utils.OKResponse(c, "Logged out", nil)
}

func (s *Server) handleGetSession(c *gin.Context) {
	tc, ok := middleware.GetTenantFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}
	ctx := c.Request.Context()

	business, err := s.auth.GetBusiness(ctx, tc.BusinessID)
	if err != nil {
		if errors.Is(err, auth.ErrBusinessNotFound) {
			_ = s.sessions.Destroy(c)
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}
		s.respondError(c, err, "Business")
		return
	}

	resp := gin.H{
		"business": business,
		"role":     tc.Role,
	}
	if tc.UserID != nil {
		scope, _, ok := s.scope(c)
		if !ok {
			return
		}
		var user models.User
		if err := scope.Get(ctx, &user, *tc.UserID); err != nil {
			s.respondError(c, err, "User")
			return
		}
		resp["user"] = user
	}
	utils.OKResponse(c, "Session active", resp)
}
