package main

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// SharedEstimate is what a client sees through a share link
type SharedEstimate struct {
	BusinessName string                `json:"business_name"`
	ClientName   string                `json:"client_name"`
	Number       string                `json:"number"`
	Status       models.EstimateStatus `json:"status"`
	Subtotal     float64               `json:"subtotal"`
	TaxRate      float64               `json:"tax_rate"`
	TaxAmount    float64               `json:"tax_amount"`
	Total        float64               `json:"total"`
	ValidUntil   *time.Time            `json:"valid_until,omitempty"`
	Notes        string                `json:"notes"`
	Items        []models.LineItem     `json:"items"`
}

// resolveShareLink verifies the token and loads its estimate inside the business it names
func (s *Server) resolveShareLink(ctx context.Context, token string) (*models.Business, *tenancy.Scope, *models.Estimate, error) {
	claims, err := s.links.Parse(token)
	if err != nil {
		return nil, nil, nil, err
	}
	business, err := s.auth.GetBusiness(ctx, claims.BusinessID)
	if err != nil {
		if errors.Is(err, auth.ErrBusinessNotFound) {
			return nil, nil, nil, auth.ErrInvalidLink
		}
		return nil, nil, nil, err
	}
	scope, err := tenancy.New(s.db, business.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	est, err := s.loadEstimate(ctx, scope, claims.EstimateID)
	if err != nil {
		return nil, nil, nil, err
	}
	return business, scope, est, nil
}

func (s *Server) respondLinkError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrInvalidLink) || errors.Is(err, tenancy.ErrNotFound) {
		utils.NotFoundResponse(c, "Estimate not found or link expired")
		return
	}
	s.respondEstimateError(c, err)
}

func sharedEstimate(business *models.Business, est *models.Estimate) SharedEstimate {
	view := SharedEstimate{
		BusinessName: business.Name,
		Number:       est.Number,
		Status:       est.Status,
		Subtotal:     est.Subtotal,
		TaxRate:      est.TaxRate,
		TaxAmount:    est.TaxAmount,
		Total:        est.Total,
		ValidUntil:   est.ValidUntil,
		Notes:        est.Notes,
		Items:        make([]models.LineItem, len(est.Items)),
	}
	if est.Client != nil {
		view.ClientName = est.Client.Name
	}
	for i, item := range est.Items {
		view.Items[i] = item.LineItem
	}
	return view
}

func (s *Server) handleGetSharedEstimate(c *gin.Context) {
	business, _, est, err := s.resolveShareLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.respondLinkError(c, err)
		return
	}
	utils.OKResponse(c, "Estimate retrieved", sharedEstimate(business, est))
}

// handleDecideSharedEstimate lets the client approve or reject an estimate they were sent
func (s *Server) handleDecideSharedEstimate(decision models.EstimateStatus) gin.HandlerFunc {
	eventType := events.EstimateApproved
	if decision == models.EstimateRejected {
		eventType = events.EstimateRejected
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		business, scope, est, err := s.resolveShareLink(ctx, c.Param("token"))
		if err != nil {
			s.respondLinkError(c, err)
			return
		}
		if !est.Editable() {
			utils.ConflictResponse(c, "Estimate has already been "+string(est.Status))
			return
		}
		if est.ValidUntil != nil && s.now().After(*est.ValidUntil) {
			utils.ConflictResponse(c, "Estimate has expired")
			return
		}

		now := s.now()
		err = scope.UpdateColumns(ctx, &models.Estimate{}, est.ID, map[string]interface{}{
			"status":     decision,
			"decided_at": now,
		})
		if err != nil {
			s.respondEstimateError(c, err)
			return
		}
		est.Status = decision
		est.DecidedAt = &now

		tc := &models.TenantContext{BusinessID: business.ID, BusinessName: business.Name}
		s.publish(c, tc, eventType, est.ID.String(), "Estimate "+est.Number+" "+string(decision)+" by client", nil)
		utils.OKResponse(c, "Estimate "+string(decision), sharedEstimate(business, est))
	}
}
