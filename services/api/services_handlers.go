package main

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// ServiceRequest creates or replaces a catalog service
type ServiceRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Rate        float64 `json:"rate"`
	Unit        string  `json:"unit"`
	IsActive    *bool   `json:"is_active"`
}

func (r ServiceRequest) apply(svc *models.Service) error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return &auth.ValidationError{Msg: "name is required"}
	}
	if r.Rate < 0 {
		return &auth.ValidationError{Msg: "rate cannot be negative"}
	}
	svc.Name = name
	svc.Description = r.Description
	svc.Rate = r.Rate
	svc.Unit = r.Unit
	if svc.Unit == "" {
		svc.Unit = "each"
	}
	if r.IsActive != nil {
		svc.IsActive = *r.IsActive
	}
	return nil
}

func listServices(ctx context.Context, scope *tenancy.Scope, activeOnly bool) ([]models.Service, error) {
	query := scope.Query(ctx).Order("name")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var services []models.Service
	if err := query.Find(&services).Error; err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Server) handleListServices(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	services, err := listServices(c.Request.Context(), scope, c.Query("active") == "true")
	if err != nil {
		s.respondError(c, err, "Services")
		return
	}
	utils.OKResponse(c, "Services retrieved", services)
}

func (s *Server) handleCreateService(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	var req ServiceRequest
	if !bindJSON(c, &req) {
		return
	}
	svc := &models.Service{IsActive: true}
	if err := req.apply(svc); err != nil {
		s.respondError(c, err, "Service")
		return
	}
	if err := scope.Create(c.Request.Context(), svc); err != nil {
		s.respondError(c, err, "Service")
		return
	}
	utils.CreatedResponse(c, "Service created", svc)
}

func (s *Server) handleGetService(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Service")
	if !ok {
		return
	}
	var svc models.Service
	if err := scope.Get(c.Request.Context(), &svc, id); err != nil {
		s.respondError(c, err, "Service")
		return
	}
	utils.OKResponse(c, "Service retrieved", svc)
}

func (s *Server) handleUpdateService(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Service")
	if !ok {
		return
	}
	var req ServiceRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var svc models.Service
	if err := scope.Get(ctx, &svc, id); err != nil {
		s.respondError(c, err, "Service")
		return
	}
	if err := req.apply(&svc); err != nil {
		s.respondError(c, err, "Service")
		return
	}
	if err := scope.Update(ctx, id, &svc); err != nil {
		s.respondError(c, err, "Service")
		return
	}
	utils.OKResponse(c, "Service updated", svc)
}

func (s *Server) handleDeleteService(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Service")
	if !ok {
		return
	}
	if err := scope.Delete(c.Request.Context(), &models.Service{}, id); err != nil {
		s.respondError(c, err, "Service")
		return
	}
	utils.OKResponse(c, "Service deleted", nil)
}
