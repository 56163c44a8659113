package main

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/utils"
)

// InvoiceView adds the derived fields clients display
type InvoiceView struct {
	*models.Invoice
	EffectiveStatus models.InvoiceStatus `json:"effective_status"`
	Balance         float64              `json:"balance"`
}

func (s *Server) invoiceView(inv *models.Invoice) InvoiceView {
	return InvoiceView{Invoice: inv, EffectiveStatus: inv.EffectiveStatus(s.now()), Balance: inv.Balance()}
}

func (s *Server) invoiceViews(invoices []models.Invoice) []InvoiceView {
	views := make([]InvoiceView, len(invoices))
	for i := range invoices {
		views[i] = s.invoiceView(&invoices[i])
	}
	return views
}

// InvoiceRequest creates or replaces an invoice
type InvoiceRequest struct {
	ClientID string            `json:"client_id" binding:"required"`
	JobID    *string           `json:"job_id"`
	TaxRate  float64           `json:"tax_rate"`
	DueDate  *string           `json:"due_date"`
	Notes    string            `json:"notes"`
	Items    []LineItemRequest `json:"items"`
}

func (r InvoiceRequest) apply(ctx context.Context, scope *tenancy.Scope, inv *models.Invoice) error {
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
	due, err := optionalDate(r.DueDate)
	if err != nil {
		return &auth.ValidationError{Msg: "invalid due_date"}
	}
	items, err := lineItems(ctx, scope, r.Items)
	if err != nil {
		return err
	}

	inv.ClientID = clientID
	inv.JobID = jobID
	inv.TaxRate = r.TaxRate
	inv.DueDate = due
	inv.Notes = r.Notes
	inv.Items = make([]models.InvoiceItem, len(items))
	for i := range items {
		inv.Items[i] = models.InvoiceItem{InvoiceID: inv.ID, LineItem: items[i]}
	}
	inv.Recalculate()
	if inv.AmountPaid > inv.Total {
		return &auth.ValidationError{Msg: "total cannot be less than the amount already paid"}
	}
	return nil
}

// listInvoices filters by stored status; "overdue" selects sent invoices past due
func listInvoices(ctx context.Context, scope *tenancy.Scope, status, clientID string, now time.Time, limit, offset int) ([]models.Invoice, int64, error) {
	query := scope.Query(ctx).Model(&models.Invoice{})
	switch models.InvoiceStatus(status) {
	case "":
	case models.InvoiceOverdue:
		query = query.Where("status = ? AND due_date < ?", models.InvoiceSent, now)
	default:
		query = query.Where("status = ?", status)
	}
	if id, err := uuid.Parse(clientID); err == nil {
		query = query.Where("client_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var invoices []models.Invoice
	err := query.Preload("Client").Preload("Items", orderByPosition).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (s *Server) loadInvoice(ctx context.Context, scope *tenancy.Scope, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := scope.Query(ctx).Preload("Client").Preload("Items", orderByPosition).
		Where("id = ?", id).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenancy.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Server) respondInvoiceError(c *gin.Context, err error) {
	if errors.Is(err, errStatusConflict) {
		utils.ConflictResponse(c, "Invoice status does not allow this action")
		return
	}
	s.respondError(c, err, "Invoice")
}

func (s *Server) handleListInvoices(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	invoices, total, err := listInvoices(c.Request.Context(), scope, c.Query("status"), c.Query("client_id"), s.now(), limit, offset)
	if err != nil {
		s.respondError(c, err, "Invoices")
		return
	}
	utils.OKResponse(c, "Invoices retrieved", gin.H{"invoices": s.invoiceViews(invoices), "total": total})
}

func (s *Server) handleCreateInvoice(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	var req InvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	inv := &models.Invoice{Status: models.InvoiceDraft}
	if err := req.apply(ctx, scope, inv); err != nil {
		s.respondError(c, err, "Invoice")
		return
	}
	if inv.DueDate == nil {
		due := s.now().Add(invoiceTerms)
		inv.DueDate = &due
	}
	err := scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		number, err := tx.NextNumber(ctx, &models.Invoice{}, "INV")
		if err != nil {
			return err
		}
		inv.Number = number
		return tx.Create(ctx, inv)
	})
	if err != nil {
		s.respondError(c, err, "Invoice")
		return
	}

	s.publish(c, tc, events.InvoiceCreated, inv.ID.String(), "Invoice "+inv.Number+" created", nil)
	utils.CreatedResponse(c, "Invoice created", s.invoiceView(inv))
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Invoice")
	if !ok {
		return
	}
	inv, err := s.loadInvoice(c.Request.Context(), scope, id)
	if err != nil {
		s.respondError(c, err, "Invoice")
		return
	}
	utils.OKResponse(c, "Invoice retrieved", s.invoiceView(inv))
}

// handleUpdateInvoice edits drafts and sent invoices; paid and cancelled ones are final
func (s *Server) handleUpdateInvoice(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Invoice")
	if !ok {
		return
	}
	var req InvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var inv models.Invoice
	if err := scope.Get(ctx, &inv, id); err != nil {
		s.respondError(c, err, "Invoice")
		return
	}
	if inv.Status != models.InvoiceDraft && inv.Status != models.InvoiceSent {
		s.respondInvoiceError(c, errStatusConflict)
		return
	}
	if err := req.apply(ctx, scope, &inv); err != nil {
		s.respondError(c, err, "Invoice")
		return
	}

	err := scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		if err := tx.Update(ctx, id, &inv); err != nil {
			return err
		}
		items := inv.Items
		return tx.ReplaceChildren(ctx, &models.Invoice{}, id, &models.InvoiceItem{}, "invoice_id", &items)
	})
	if err != nil {
		s.respondError(c, err, "Invoice")
		return
	}

	updated, err := s.loadInvoice(ctx, scope, id)
	if err != nil {
		s.respondError(c, err, "Invoice")
		return
	}
	utils.OKResponse(c, "Invoice updated", s.invoiceView(updated))
}

// handleDeleteInvoice removes drafts only; issued invoices are cancelled instead
func (s *Server) handleDeleteInvoice(c *gin.Context) {
	scope, _, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Invoice")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var inv models.Invoice
	if err := scope.Get(ctx, &inv, id); err != nil {
		s.respondError(c, err, "Invoice")
		return
	}
	switch inv.Status {
	case models.InvoiceDraft:
		err := scope.Delete(ctx, &models.Invoice{}, id)
		if err != nil {
			s.respondError(c, err, "Invoice")
			return
		}
		utils.OKResponse(c, "Invoice deleted", nil)
	case models.InvoiceSent:
		err := scope.UpdateColumns(ctx, &models.Invoice{}, id, map[string]interface{}{
			"status": models.InvoiceCancelled,
		})
		if err != nil {
			s.respondError(c, err, "Invoice")
			return
		}
		utils.OKResponse(c, "Invoice cancelled", nil)
	default:
		s.respondInvoiceError(c, errStatusConflict)
	}
}

func (s *Server) handleSendInvoice(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Invoice")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var inv models.Invoice
	if err := scope.Get(ctx, &inv, id); err != nil {
		s.respondError(c, err, "Invoice")
		return
	}
	if inv.Status != models.InvoiceDraft && inv.Status != models.InvoiceSent {
		s.respondInvoiceError(c, errStatusConflict)
		return
	}

	now := s.now()
	err := scope.UpdateColumns(ctx, &models.Invoice{}, id, map[string]interface{}{
		"status":  models.InvoiceSent,
		"sent_at": now,
	})
	if err != nil {
		s.respondError(c, err, "Invoice")
		return
	}
	inv.Status = models.InvoiceSent
	inv.SentAt = &now

	s.publish(c, tc, events.InvoiceSent, inv.ID.String(), "Invoice "+inv.Number+" sent", nil)
	utils.OKResponse(c, "Invoice sent", s.invoiceView(&inv))
}

// PaymentRequest records a payment; a missing amount pays the full balance
type PaymentRequest struct {
	Amount *float64 `json:"amount"`
}

func (s *Server) handlePayInvoice(c *gin.Context) {
	scope, tc, ok := s.scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "Invoice")
	if !ok {
		return
	}
	var req PaymentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var inv models.Invoice
	err := scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		if err := tx.Get(ctx, &inv, id); err != nil {
			return err
		}
		if inv.Status != models.InvoiceDraft && inv.Status != models.InvoiceSent {
			return errStatusConflict
		}
		amount := inv.Balance()
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount <= 0 || amount > inv.Balance() {
			return &auth.ValidationError{Msg: "amount must be positive and no more than the balance"}
		}

		inv.AmountPaid += amount
		values := map[string]interface{}{"amount_paid": inv.AmountPaid}
		if inv.Balance() <= 0 {
			now := s.now()
			inv.Status = models.InvoicePaid
			inv.PaidAt = &now
			values["status"] = inv.Status
			values["paid_at"] = now
		}
		return tx.UpdateColumns(ctx, &models.Invoice{}, id, values)
	})
	if err != nil {
		s.respondInvoiceError(c, err)
		return
	}

	if inv.Status == models.InvoicePaid {
		s.publish(c, tc, events.InvoicePaid, inv.ID.String(), "Invoice "+inv.Number+" paid", nil)
	}
	utils.OKResponse(c, "Payment recorded", s.invoiceView(&inv))
}
