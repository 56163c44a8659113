package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LineItem is a priced row shared by estimates and invoices
type LineItem struct {
	Description string     `json:"description" gorm:"not null"`
	Quantity    float64    `json:"quantity" gorm:"not null"`
	Rate        float64    `json:"rate" gorm:"not null"`
	Amount      float64    `json:"amount" gorm:"not null"`
	ServiceID   *uuid.UUID `json:"service_id,omitempty" gorm:"type:uuid"`
}

// Totals is the computed money summary of a set of line items
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	TaxAmount float64 `json:"tax_amount"`
	Total     float64 `json:"total"`
}

// ComputeTotals sets each item's amount and returns subtotal, tax and total rounded to cents.
// taxRate is a percentage.
func ComputeTotals(items []*LineItem, taxRate float64) Totals {
	var subtotal float64
	for _, item := range items {
		item.Amount = roundCents(item.Quantity * item.Rate)
		subtotal += item.Amount
	}
	subtotal = roundCents(subtotal)
	tax := roundCents(subtotal * taxRate / 100)
	return Totals{Subtotal: subtotal, TaxAmount: tax, Total: roundCents(subtotal + tax)}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

type EstimateStatus string

const (
	EstimateDraft     EstimateStatus = "draft"
	EstimateSent      EstimateStatus = "sent"
	EstimateApproved  EstimateStatus = "approved"
	EstimateRejected  EstimateStatus = "rejected"
	EstimateConverted EstimateStatus = "converted"
)

// Estimate is a priced quote sent to a client
type Estimate struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID uuid.UUID      `json:"business_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_estimates_business_number"`
	ClientID   uuid.UUID      `json:"client_id" gorm:"type:uuid;not null;index"`
	JobID      *uuid.UUID     `json:"job_id,omitempty" gorm:"type:uuid"`
	Number     string         `json:"number" gorm:"not null;uniqueIndex:idx_estimates_business_number"`
	Status     EstimateStatus `json:"status" gorm:"type:varchar(20);not null;default:draft"`
	Subtotal   float64        `json:"subtotal"`
	TaxRate    float64        `json:"tax_rate"`
	TaxAmount  float64        `json:"tax_amount"`
	Total      float64        `json:"total"`
	ValidUntil *time.Time     `json:"valid_until,omitempty"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	Notes      string         `json:"notes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	Items  []EstimateItem `json:"items" gorm:"foreignKey:EstimateID;constraint:OnDelete:CASCADE"`
	Client *Client        `json:"client,omitempty" gorm:"foreignKey:ClientID"`
}

type EstimateItem struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	EstimateID uuid.UUID `json:"estimate_id" gorm:"type:uuid;not null;index"`
	Position   int       `json:"position"`
	LineItem
}

func (Estimate) TableName() string {
	return "estimates"
}

func (EstimateItem) TableName() string {
	return "estimate_items"
}

func (e *Estimate) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (i *EstimateItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (e *Estimate) SetBusinessID(id uuid.UUID) {
	e.BusinessID = id
}

// Recalculate refreshes item amounts, positions and the estimate totals
func (e *Estimate) Recalculate() {
	items := make([]*LineItem, len(e.Items))
	for i := range e.Items {
		e.Items[i].Position = i + 1
		items[i] = &e.Items[i].LineItem
	}
	t := ComputeTotals(items, e.TaxRate)
	e.Subtotal, e.TaxAmount, e.Total = t.Subtotal, t.TaxAmount, t.Total
}

// Editable reports whether the estimate can still be changed
func (e *Estimate) Editable() bool {
	return e.Status == EstimateDraft || e.Status == EstimateSent
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	// InvoiceOverdue is derived from sent + past due date and never stored
	InvoiceOverdue InvoiceStatus = "overdue"
)

// Invoice is a bill issued to a client
type Invoice struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	BusinessID uuid.UUID      `json:"business_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_invoices_business_number"`
	ClientID   uuid.UUID      `json:"client_id" gorm:"type:uuid;not null;index"`
	JobID      *uuid.UUID     `json:"job_id,omitempty" gorm:"type:uuid"`
	EstimateID *uuid.UUID     `json:"estimate_id,omitempty" gorm:"type:uuid"`
	Number     string         `json:"number" gorm:"not null;uniqueIndex:idx_invoices_business_number"`
	Status     InvoiceStatus  `json:"status" gorm:"type:varchar(20);not null;default:draft"`
	Subtotal   float64        `json:"subtotal"`
	TaxRate    float64        `json:"tax_rate"`
	TaxAmount  float64        `json:"tax_amount"`
	Total      float64        `json:"total"`
	AmountPaid float64        `json:"amount_paid"`
	DueDate    *time.Time     `json:"due_date,omitempty"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
	PaidAt     *time.Time     `json:"paid_at,omitempty"`
	Notes      string         `json:"notes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	Items  []InvoiceItem `json:"items" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	Client *Client       `json:"client,omitempty" gorm:"foreignKey:ClientID"`
}

type InvoiceItem struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	InvoiceID uuid.UUID `json:"invoice_id" gorm:"type:uuid;not null;index"`
	Position  int       `json:"position"`
	LineItem
}

func (Invoice) TableName() string {
	return "invoices"
}

func (InvoiceItem) TableName() string {
	return "invoice_items"
}

func (inv *Invoice) BeforeCreate(tx *gorm.DB) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	return nil
}

func (i *InvoiceItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (inv *Invoice) SetBusinessID(id uuid.UUID) {
	inv.BusinessID = id
}

// Recalculate refreshes item amounts, positions and the invoice totals
func (inv *Invoice) Recalculate() {
	items := make([]*LineItem, len(inv.Items))
	for i := range inv.Items {
		inv.Items[i].Position = i + 1
		items[i] = &inv.Items[i].LineItem
	}
	t := ComputeTotals(items, inv.TaxRate)
	inv.Subtotal, inv.TaxAmount, inv.Total = t.Subtotal, t.TaxAmount, t.Total
}

// EffectiveStatus reports overdue for sent invoices past their due date
func (inv *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if inv.Status == InvoiceSent && inv.DueDate != nil && now.After(*inv.DueDate) {
		return InvoiceOverdue
	}
	return inv.Status
}

// Balance is the amount still owed
func (inv *Invoice) Balance() float64 {
	return roundCents(inv.Total - inv.AmountPaid)
}

// InvoiceFromEstimate copies an estimate's priced items into a new draft invoice
func InvoiceFromEstimate(e *Estimate, number string, due time.Time) *Invoice {
	inv := &Invoice{
		BusinessID: e.BusinessID,
		ClientID:   e.ClientID,
		JobID:      e.JobID,
		EstimateID: &e.ID,
		Number:     number,
		Status:     InvoiceDraft,
		TaxRate:    e.TaxRate,
		DueDate:    &due,
		Notes:      e.Notes,
	}
	for _, item := range e.Items {
		inv.Items = append(inv.Items, InvoiceItem{LineItem: item.LineItem})
	}
	inv.Recalculate()
	return inv
}

// DocumentCounter hands out per-business document numbers. Incrementing the row locks
// it until the transaction that took the number commits.
type DocumentCounter struct {
	BusinessID uuid.UUID `json:"business_id" gorm:"type:uuid;primaryKey"`
	Prefix     string    `json:"prefix" gorm:"primaryKey;size:16"`
	Value      int64     `json:"value" gorm:"not null"`
}

func (DocumentCounter) TableName() string {
	return "document_counters"
}
