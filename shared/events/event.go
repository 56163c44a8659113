// Package events carries business activity from the API to the notifier over Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	ClientCreated      = "client.created"
	JobCreated         = "job.created"
	JobStatusChanged   = "job.status_changed"
	EstimateCreated    = "estimate.created"
	EstimateShared     = "estimate.shared"
	EstimateApproved   = "estimate.approved"
	EstimateRejected   = "estimate.rejected"
	EstimateConverted  = "estimate.converted"
	InvoiceCreated     = "invoice.created"
	InvoiceSent        = "invoice.sent"
	InvoicePaid        = "invoice.paid"
	TimeClockIn        = "time.clock_in"
	TimeClockOut       = "time.clock_out"
	APIKeyIssued       = "api_key.issued"
	APIKeyRevoked      = "api_key.revoked"
	TeamMemberLoggedIn = "user.login"
)

// Event is one thing that happened inside a business
type Event struct {
	ID         string          `json:"id"`
	BusinessID uuid.UUID       `json:"business_id"`
	Type       string          `json:"type"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// New builds an event with a fresh id. payload may be nil.
func New(businessID uuid.UUID, actorID *uuid.UUID, eventType, entityID, summary string, payload interface{}) Event {
	e := Event{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Type:       eventType,
		EntityID:   entityID,
		ActorID:    actorID,
		Summary:    summary,
		Timestamp:  time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// Publisher accepts events for delivery. Publish must not block the request path.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// ErrUnprocessable marks an event a handler can never process, such as one without a
// business. Consumers skip it instead of retrying.
var ErrUnprocessable = errors.New("unprocessable event")

// Handler processes one delivered event
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// InlinePublisher hands events straight to a handler in the calling goroutine. Used
// when no Kafka broker is configured.
type InlinePublisher struct {
	handler Handler
}

func NewInlinePublisher(h Handler) *InlinePublisher {
	return &InlinePublisher{handler: h}
}

func (p *InlinePublisher) Publish(ctx context.Context, e Event) error {
	return p.handler.Handle(context.WithoutCancel(ctx), e)
}

func (p *InlinePublisher) Close() error {
	return nil
}
