package main

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// ClientRequest creates or replaces a client
type ClientRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

func (r ClientRequest) apply(client *models.Client) error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return &auth.ValidationError{Msg: "name is required"}
	}
	client.Name = name
	client.Email = strings.TrimSpace(r.Email)
	client.Phone = r.Phone
	client.Address = r.Address
	client.Notes = r.Notes
	return nil
}

// listClients pages through the business's clients, optionally filtered by name or email
func listClients(ctx context.Context, scope *tenancy.Scope, search string, limit, offset int) ([]models.Client, int64, error) {
	query := scope.Query(ctx).Model(&models.Client{})
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var clients []models.Client
	if err := query.Order("name").Limit(limit).Offset(offset).Find(&clients).Error; err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}

func (s *Server) createClient(c *gin.Context, scope *tenancy.Scope, tc *models.TenantContext, req ClientRequest) (*models.Client, error) {
	client := &models.Client{}
	if err := req.apply(client); err != nil {
		return nil, err
	}
	if err := scope.Create(c.Request.Context(), client); err != nil {
		return nil, err
	}
	s.publish(c, tc, events.ClientCreated, client.ID.String(), "Client "+client.Name+" added", nil)
	return client, nil
}

func (s *Server) handleListClients(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	clients, total, err := listClients(c.Request.Context(), scope, c.Query("search"), limit, offset)
	if err != nil {
		s.respondError(c, err, "Clients")
		return
	}
	utils.OKResponse(c, "Clients retrieved", gin.H{"clients": clients, "total": total})
}

func (s *Server) handleCreateClient(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req ClientRequest
	if !bindJSON(c, &req) {
		return
	}
	client, err := s.createClient(c, scope, tc, req)
	if err != nil {
		s.respondError(c, err, "Client")
		return
	}
	utils.CreatedResponse(c, "Client created", client)
}

func (s *Server) handleGetClient(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Client")
	if !ok {
		return
	}
	var client models.Client
	if err := scope.Get(c.Request.Context(), &client, id); err != nil {
		s.respondError(c, err, "Client")
		return
	}
	utils.OKResponse(c, "Client retrieved", client)
}

func (s *Server) handleUpdateClient(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Client")
	if !ok {
		return
	}
	var req ClientRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var client models.Client
	if err := scope.Get(ctx, &client, id); err != nil {
		s.respondError(c, err, "Client")
		return
	}
	if err := req.apply(&client); err != nil {
		s.respondError(c, err, "Client")
		return
	}
	if err := scope.Update(ctx, id, &client); err != nil {
		s.respondError(c, err, "Client")
		return
	}
	utils.OKResponse(c, "Client updated", client)
}

func (s *Server) handleDeleteClient(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Client")
	if !ok {
		return
	}
	if err := scope.Delete(c.Request.Context(), &models.Client{}, id); err != nil {
		s.respondError(c, err, "Client")
		return
	}
	utils.OKResponse(c, "Client deleted", nil)
}
