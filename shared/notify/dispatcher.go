// Package notify turns activity events into feed entries and client emails, and retries
// emails that could not be delivered.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/events"
	"github.com/bizworx/bizworx-api/shared/mailer"
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
)

// errNothingToSend marks events whose email can never be sent (no recipient, record gone)
var errNothingToSend = errors.New("nothing to send")

// SharePayload is the payload of estimate.shared events
type SharePayload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Dispatcher handles events delivered by the consumer
type Dispatcher struct {
	db     *gorm.DB
	mailer mailer.Mailer
	log    *logrus.Logger
	now    func() time.Time
}

func NewDispatcher(db *gorm.DB, m mailer.Mailer, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{db: db, mailer: m, log: log, now: time.Now}
}

// Handle records the event in the business's activity feed and sends any email it
// triggers. Redelivered events are ignored.
func (d *Dispatcher) Handle(ctx context.Context, e events.Event) error {
	scope, err := tenancy.New(d.db, e.BusinessID)
	if err != nil {
		return fmt.Errorf("event %s: %w: %w", e.ID, events.ErrUnprocessable, err)
	}

	var seen int64
	if err := scope.Query(ctx).Model(&models.ActivityLog{}).Where("event_id = ?", e.ID).Count(&seen).Error; err != nil {
		return fmt.Errorf("check event: %w", err)
	}
	if seen > 0 {
		return nil
	}

	entry := &models.ActivityLog{
		EventID:    e.ID,
		Type:       e.Type,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Summary:    e.Summary,
		OccurredAt: e.Timestamp,
	}
	if err := scope.Create(ctx, entry); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	if !emailed(e.Type) {
		return nil
	}

	msg, err := d.compose(ctx, e)
	if errors.Is(err, errNothingToSend) {
		d.log.WithFields(logrus.Fields{"event_id": e.ID, "event_type": e.Type}).Info("no email to send")
		return nil
	}
	if err == nil {
		err = d.mailer.Send(ctx, msg)
	}
	if err != nil {
		metrics.Notification("failed")
		return d.recordFailure(ctx, e, err)
	}

	metrics.Notification("sent")
	return nil
}

func emailed(eventType string) bool {
	return eventType == events.InvoiceSent || eventType == events.EstimateShared
}

// compose builds the email for an event from the current database state
func (d *Dispatcher) compose(ctx context.Context, e events.Event) (mailer.Message, error) {
	scope, err := tenancy.New(d.db, e.BusinessID)
	if err != nil {
		return mailer.Message{}, errNothingToSend
	}

	var business models.Business
	if err := d.db.WithContext(ctx).Where("id = ?", e.BusinessID).First(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return mailer.Message{}, errNothingToSend
		}
		return mailer.Message{}, err
	}

	id, err := parseID(e.EntityID)
	if err != nil {
		return mailer.Message{}, errNothingToSend
	}

	switch e.Type {
	case events.InvoiceSent:
		var inv models.Invoice
		if err := scope.Get(ctx, &inv, id, "Client", "Items"); err != nil {
			return mailer.Message{}, notFoundAsNothing(err)
		}
		if inv.Client == nil || inv.Client.Email == "" {
			return mailer.Message{}, errNothingToSend
		}
		return invoiceMessage(&business, &inv), nil

	case events.EstimateShared:
		var est models.Estimate
		if err := scope.Get(ctx, &est, id, "Client"); err != nil {
			return mailer.Message{}, notFoundAsNothing(err)
		}
		var share SharePayload
		if err := json.Unmarshal(e.Payload, &share); err != nil || share.URL == "" {
			return mailer.Message{}, errNothingToSend
		}
		if est.Client == nil || est.Client.Email == "" {
			return mailer.Message{}, errNothingToSend
		}
		return estimateMessage(&business, &est, share), nil
	}
	return mailer.Message{}, errNothingToSend
}

func notFoundAsNothing(err error) error {
	if errors.Is(err, tenancy.ErrNotFound) {
		return errNothingToSend
	}
	return err
}

// recordFailure queues the event for the retry consumer
func (d *Dispatcher) recordFailure(ctx context.Context, e events.Event, cause error) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal failed event: %w", err)
	}
	next := d.now().Add(time.Minute)
	failed := &models.FailedNotification{
		EventID:      e.ID,
		BusinessID:   e.BusinessID,
		EventType:    e.Type,
		Payload:      string(raw),
		ErrorMessage: cause.Error(),
		Status:       models.NotificationPending,
		NextRetryAt:  &next,
	}
	if err := d.db.WithContext(ctx).Create(failed).Error; err != nil {
		return fmt.Errorf("store failed notification: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"event_id":    e.ID,
		"business_id": e.BusinessID,
		"next_retry":  next.Format(time.RFC3339),
	}).WithError(cause).Warn("notification failed, queued for retry")
	return nil
}
