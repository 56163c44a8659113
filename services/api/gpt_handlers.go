package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// The /api/gpt namespace serves integrations holding a business API key. Every response
// names the business the data came from.

func (s *Server) gptOK(c *gin.Context, tc *models.TenantContext, status int, message string, data interface{}) {
	utils.GPTResponseFor(c, status, tc.BusinessID, tc.BusinessName, message, data)
}

func (s *Server) gptError(c *gin.Context, tc *models.TenantContext, err error, what string) {
	var verr *auth.ValidationError
	switch {
	case errors.Is(err, tenancy.ErrNotFound):
		s.gptOK(c, tc, http.StatusNotFound, what+" not found", nil)
	case errors.As(err, &verr):
		s.gptOK(c, tc, http.StatusBadRequest, verr.Msg, nil)
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("gpt request failed")
		s.gptOK(c, tc, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func (s *Server) handleGPTBusiness(c *gin.Context) {
	_, tc, ok := s.scope(c)
	if !ok {
		return
	}
	business, err := s.auth.GetBusiness(c.Request.Context(), tc.BusinessID)
	if err != nil {
		s.gptError(c, tc, err, "Business")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Business retrieved", gin.H{
		"id":      business.ID,
		"name":    business.Name,
		"email":   business.Email,
		"phone":   business.Phone,
		"address": business.Address,
	})
}

func (s *Server) handleGPTListClients(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	clients, total, err := listClients(c.Request.Context(), scope, c.Query("search"), limit, offset)
	if err != nil {
		s.gptError(c, tc, err, "Clients")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Clients retrieved", gin.H{"clients": clients, "total": total})
}

func (s *Server) handleGPTCreateClient(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.gptOK(c, tc, http.StatusBadRequest, "Invalid request format", nil)
		return
	}
	client, err := s.createClient(c, scope, tc, req)
	if err != nil {
		s.gptError(c, tc, err, "Client")
		return
	}
	s.gptOK(c, tc, http.StatusCreated, "Client created", client)
}

func (s *Server) handleGPTGetClient(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, err := parseIDParam(c)
	if err != nil {
		s.gptOK(c, tc, http.StatusNotFound, "Client not found", nil)
		return
	}

	ctx := c.Request.Context()
	var client models.Client
	if err := scope.Get(ctx, &client, id); err != nil {
		s.gptError(c, tc, err, "Client")
		return
	}
	var jobs []models.Job
	if err := scope.Query(ctx).Where("client_id = ?", id).Order("created_at DESC").Limit(20).Find(&jobs).Error; err != nil {
		s.gptError(c, tc, err, "Client")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Client retrieved", gin.H{"client": client, "recent_jobs": jobs})
}

func (s *Server) handleGPTListJobs(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	jobs, total, err := listJobs(c.Request.Context(), scope, JobFilter{
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
	}, limit, offset)
	if err != nil {
		s.gptError(c, tc, err, "Jobs")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Jobs retrieved", gin.H{"jobs": jobs, "total": total})
}

func (s *Server) handleGPTCreateJob(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.gptOK(c, tc, http.StatusBadRequest, "Invalid request format", nil)
		return
	}
	job, err := s.createJob(c, scope, tc, req)
	if err != nil {
		s.gptError(c, tc, err, "Client")
		return
	}
	s.gptOK(c, tc, http.StatusCreated, "Job created", job)
}

func (s *Server) handleGPTListEstimates(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	estimates, total, err := listEstimates(c.Request.Context(), scope, c.Query("status"), c.Query("client_id"), limit, offset)
	if err != nil {
		s.gptError(c, tc, err, "Estimates")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Estimates retrieved", gin.H{"estimates": estimates, "total": total})
}

func (s *Server) handleGPTListInvoices(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	invoices, total, err := listInvoices(c.Request.Context(), scope, c.Query("status"), c.Query("client_id"), s.now(), limit, offset)
	if err != nil {
		s.gptError(c, tc, err, "Invoices")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Invoices retrieved", gin.H{"invoices": s.invoiceViews(invoices), "total": total})
}

func (s *Server) handleGPTListServices(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	services, err := listServices(c.Request.Context(), scope, true)
	if err != nil {
		s.gptError(c, tc, err, "Services")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Services retrieved", services)
}

func (s *Server) handleGPTDashboard(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	d, err := buildDashboard(c.Request.Context(), scope, s.now())
	if err != nil {
		s.gptError(c, tc, err, "Dashboard")
		return
	}
	s.gptOK(c, tc, http.StatusOK, "Dashboard retrieved", d)
}
