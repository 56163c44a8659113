package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/notify"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

const invoiceTerms = 30 * 24 * time.Hour

// errStatusConflict marks actions that the record's status does not allow
var errStatusConflict = errors.New("status conflict")

// LineItemRequest is one priced row of an estimate or invoice
type LineItemRequest struct {
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	Rate        *float64 `json:"rate"`
	ServiceID   *string  `json:"service_id"`
}

// lineItems validates rows and fills rate and description from catalog services
func lineItems(ctx context.Context, scope *tenancy.Scope, rows []LineItemRequest) ([]models.LineItem, error) {
	items := make([]models.LineItem, 0, len(rows))
	for _, row := range rows {
		item := models.LineItem{Description: strings.TrimSpace(row.Description), Quantity: row.Quantity}
		if item.Quantity <= 0 {
			return nil, &auth.ValidationError{Msg: "quantity must be greater than zero"}
		}

		serviceID, err := optionalUUID(row.ServiceID)
		if err != nil {
			return nil, &auth.ValidationError{Msg: "invalid service_id"}
		}
		if serviceID != nil {
			var svc models.Service
			if err := scope.Get(ctx, &svc, *serviceID); err != nil {
				return nil, err
			}
			item.ServiceID = serviceID
			item.Rate = svc.Rate
			if item.Description == "" {
				item.Description = svc.Name
			}
		}
		if row.Rate != nil {
			item.Rate = *row.Rate
		}
		if item.Rate < 0 {
			return nil, &auth.ValidationError{Msg: "rate cannot be negative"}
		}
		if item.Description == "" {
			return nil, &auth.ValidationError{Msg: "description is required"}
		}
		items = append(items, item)
	}
	return items, nil
}

// EstimateRequest creates or replaces an estimate
type EstimateRequest struct {
	ClientID   string            `json:"client_id" binding:"required"`
	JobID      *string           `json:"job_id"`
	TaxRate    float64           `json:"tax_rate"`
	ValidUntil *string           `json:"valid_until"`
	Notes      string            `json:"notes"`
	Items      []LineItemRequest `json:"items"`
}

func (r EstimateRequest) apply(ctx context.Context, scope *tenancy.Scope, est *models.Estimate) error {
	clientID, err := uuid.Parse(r.ClientID)
	if err != nil {
		return &auth.ValidationError{Msg: "invalid client_id"}
	}
	if err := requireOwned(ctx, scope, &models.Client{}, clientID); err != nil {
		return err
	}
	jobID, err := optionalUUID(r.JobID)
	if err != nil {
		return &auth.ValidationError{Msg: "invalid job_id"}
	}
	if jobID != nil {
		if err := requireOwned(ctx, scope, &models.Job{}, *jobID); err != nil {
			return err
		}
	}
	if r.TaxRate < 0 || r.TaxRate > 100 {
		return &auth.ValidationError{Msg: "tax_rate must be between 0 and 100"}
	}
	validUntil, err := optionalDate(r.ValidUntil)
	if err != nil {
		return &auth.ValidationError{Msg: "invalid valid_until"}
	}
	items, err := lineItems(ctx, scope, r.Items)
	if err != nil {
		return err
	}

	est.ClientID = clientID
	est.JobID = jobID
	est.TaxRate = r.TaxRate
	est.ValidUntil = validUntil
	est.Notes = r.Notes
	est.Items = make([]models.EstimateItem, len(items))
	for i := range items {
		est.Items[i] = models.EstimateItem{EstimateID: est.ID, LineItem: items[i]}
	}
	est.Recalculate()
	return nil
}

func listEstimates(ctx context.Context, scope *tenancy.Scope, status, clientID string, limit, offset int) ([]models.Estimate, int64, error) {
	query := scope.Query(ctx).Model(&models.Estimate{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if id, err := uuid.Parse(clientID); err == nil {
		query = query.Where("client_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var estimates []models.Estimate
	err := query.Preload("Client").Preload("Items", orderByPosition).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&estimates).Error
	if err != nil {
		return nil, 0, err
	}
	return estimates, total, nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (s *Server) respondEstimateError(c *gin.Context, err error) {
	if errors.Is(err, errStatusConflict) {
		utils.ConflictResponse(c, "Estimate can no longer be changed")
		return
	}
	s.respondError(c, err, "Estimate")
}

func (s *Server) loadEstimate(ctx context.Context, scope *tenancy.Scope, id uuid.UUID) (*models.Estimate, error) {
	var est models.Estimate
	if err := scope.Query(ctx).Preload("Client").Preload("Items", orderByPosition).
		Where("id = ?", id).First(&est).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenancy.ErrNotFound
		}
		return nil, err
	}
	return &est, nil
}

func (s *Server) handleListEstimates(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	estimates, total, err := listEstimates(c.Request.Context(), scope, c.Query("status"), c.Query("client_id"), limit, offset)
	if err != nil {
		s.respondError(c, err, "Estimates")
		return
	}
	utils.OKResponse(c, "Estimates retrieved", gin.H{"estimates": estimates, "total": total})
}

func (s *Server) handleCreateEstimate(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req EstimateRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	est := &models.Estimate{Status: models.EstimateDraft}
	if err := req.apply(ctx, scope, est); err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	err := scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		number, err := tx.NextNumber(ctx, &models.Estimate{}, "EST")
		if err != nil {
			return err
		}
		est.Number = number
		return tx.Create(ctx, est)
	})
	if err != nil {
		s.respondError(c, err, "Estimate")
		return
	}

	s.publish(c, tc, events.EstimateCreated, est.ID.String(), "Estimate "+est.Number+" created", nil)
	utils.CreatedResponse(c, "Estimate created", est)
}

func (s *Server) handleGetEstimate(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Estimate")
	if !ok {
		return
	}
	est, err := s.loadEstimate(c.Request.Context(), scope, id)
	if err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	utils.OKResponse(c, "Estimate retrieved", est)
}

func (s *Server) handleUpdateEstimate(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Estimate")
	if !ok {
		return
	}
	var req EstimateRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var est models.Estimate
	if err := scope.Get(ctx, &est, id); err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	if !est.Editable() {
		s.respondEstimateError(c, errStatusConflict)
		return
	}
	if err := req.apply(ctx, scope, &est); err != nil {
		s.respondError(c, err, "Estimate")
		return
	}

	err := scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		if err := tx.Update(ctx, id, &est); err != nil {
			return err
		}
		items := est.Items
		return tx.ReplaceChildren(ctx, &models.Estimate{}, id, &models.EstimateItem{}, "estimate_id", &items)
	})
	if err != nil {
		s.respondError(c, err, "Estimate")
		return
	}

	updated, err := s.loadEstimate(ctx, scope, id)
	if err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	utils.OKResponse(c, "Estimate updated", updated)
}

func (s *Server) handleDeleteEstimate(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Estimate")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var est models.Estimate
	if err := scope.Get(ctx, &est, id); err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	if est.Status == models.EstimateConverted {
		s.respondEstimateError(c, errStatusConflict)
		return
	}
	if err := scope.Delete(ctx, &models.Estimate{}, id); err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	utils.OKResponse(c, "Estimate deleted", nil)
}

// handleShareEstimate signs a public link for the client and marks drafts as sent
func (s *Server) handleShareEstimate(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Estimate")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var est models.Estimate
	if err := scope.Get(ctx, &est, id); err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	if !est.Editable() {
		s.respondEstimateError(c, errStatusConflict)
		return
	}

	token, expires, err := s.links.Sign(tc.BusinessID, est.ID)
	if err != nil {
		s.respondError(c, err, "Estimate")
		return
	}
	url := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/estimates/view/" + token

	if est.Status == models.EstimateDraft {
		now := s.now()
		err := scope.UpdateColumns(ctx, &models.Estimate{}, id, map[string]interface{}{
			"status":  models.EstimateSent,
			"sent_at": now,
		})
		if err != nil {
			s.respondError(c, err, "Estimate")
			return
		}
	}

	s.publish(c, tc, events.EstimateShared, est.ID.String(), "Estimate "+est.Number+" shared",
		notify.SharePayload{URL: url, ExpiresAt: expires})
	utils.OKResponse(c, "Estimate shared", gin.H{
		"token":      token,
		"url":        url,
		"expires_at": expires,
	})
}

// handleConvertEstimate turns an estimate into a draft invoice
func (s *Server) handleConvertEstimate(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Estimate")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var inv *models.Invoice
	err := scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		est, err := s.loadEstimate(ctx, tx, id)
		if err != nil {
			return err
		}
		if est.Status == models.EstimateConverted || est.Status == models.EstimateRejected {
			return errStatusConflict
		}
		number, err := tx.NextNumber(ctx, &models.Invoice{}, "INV")
		if err != nil {
			return err
		}
		inv = models.InvoiceFromEstimate(est, number, s.now().Add(invoiceTerms))
		if err := tx.Create(ctx, inv); err != nil {
			return err
		}
		return tx.UpdateColumns(ctx, &models.Estimate{}, id, map[string]interface{}{
			"status": models.EstimateConverted,
		})
	})
	if err != nil {
		s.respondEstimateError(c, err)
		return
	}

	s.publish(c, tc, events.EstimateConverted, id.String(), "Estimate converted to invoice "+inv.Number,
		gin.H{"invoice_id": inv.ID})
	utils.CreatedResponse(c, "Estimate converted", s.invoiceView(inv))
}
