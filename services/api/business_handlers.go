package main

import (
	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/middleware"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// UpdateBusinessRequest changes the business profile. Email and password are not editable here.
type UpdateBusinessRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

func (s *Server) handleGetBusiness(c *gin.Context) {
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
	utils.OKResponse(c, "Business retrieved", business)
}

func (s *Server) handleUpdateBusiness(c *gin.Context) {
	tc, ok := middleware.GetTenantFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}
	var req UpdateBusinessRequest
	if !bindJSON(c, &req) {
		return
	}

	business, err := s.auth.UpdateBusiness(c.Request.Context(), tc.BusinessID, auth.BusinessProfile{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		s.respondError(c, err, "Business")
		return
	}
	// the caller's own session starts showing the new name right away; other devices
	// pick it up on their next login
	if req.Name != nil {
		if _, err := s.sessions.Rename(c, business.Name); err != nil {
			s.log.WithError(err).Warn("failed to refresh session business name")
		}
	}
	utils.OKResponse(c, "Business updated", business)
}

func (s *Server) handleGetAPIKeyStatus(c *gin.Context) {
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
	utils.OKResponse(c, "API key status", business.APIKeyStatus())
}

// handleIssueAPIKey returns the plaintext key exactly once
func (s *Server) handleIssueAPIKey(c *gin.Context) {
	tc, ok := middleware.GetTenantFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}

	key, business, err := s.auth.IssueAPIKey(c.Request.Context(), tc.BusinessID)
	if err != nil {
		s.respondError(c, err, "Business")
		return
	}
	metrics.APIKeyIssued()
	s.publish(c, tc, events.APIKeyIssued, business.ID.String(), "API key issued", nil)

	status := business.APIKeyStatus()
	c.Header("Cache-Control", "no-store")
	utils.CreatedResponse(c, "API key issued. Store it now, it will not be shown again", gin.H{
		"api_key":    key,
		"last4":      status.Last4,
		"created_at": status.CreatedAt,
		"header":     middleware.APIKeyHeader,
	})
}

func (s *Server) handleRevokeAPIKey(c *gin.Context) {
	tc, ok := middleware.GetTenantFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}
	if err := s.auth.RevokeAPIKey(c.Request.Context(), tc.BusinessID); err != nil {
		s.respondError(c, err, "Business")
		return
	}
	s.publish(c, tc, events.APIKeyRevoked, tc.BusinessID.String(), "API key revoked", nil)
	utils.OKResponse(c, "API key revoked", nil)
}
