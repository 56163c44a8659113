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
	"github.com/bizworx/bizworx-api/shared/metrics"
	"github.com/bizworx/bizworx-api/shared/models"
)

// RetryConfig tunes the retry loop
type RetryConfig struct {
	MaxRetries int
	BatchSize  int
	Interval   time.Duration
}

// Retrier re-sends failed notifications with exponential backoff
type Retrier struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	cfg        RetryConfig
	log        *logrus.Logger
	now        func() time.Time
}

func NewRetrier(db *gorm.DB, dispatcher *Dispatcher, cfg RetryConfig, log *logrus.Logger) *Retrier {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 8
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Retrier{db: db, dispatcher: dispatcher, cfg: cfg, log: log, now: time.Now}
}

// Backoff is the wait before the next attempt after retryCount failed retries:
// 1m, 2m, 4m, 8m, ...
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return time.Minute * time.Duration(1<<(retryCount-1))
}

// Run processes due notifications every interval until ctx is cancelled
func (r *Retrier) Run(ctx context.Context) {
	r.log.WithField("interval", r.cfg.Interval.String()).Info("retry consumer started")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if n, err := r.ProcessDue(ctx); err != nil {
			r.log.WithError(err).Error("error processing failed notifications")
		} else if n > 0 {
			r.log.WithField("count", n).Info("processed failed notifications")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue retries every pending notification whose retry time has come and returns
// how many were attempted
func (r *Retrier) ProcessDue(ctx context.Context) (int, error) {
	var due []models.FailedNotification
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", models.NotificationPending, r.now()).
		Order("created_at ASC").
		Limit(r.cfg.BatchSize).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("load failed notifications: %w", err)
	}

	for i := range due {
		if ctx.Err() != nil {
			return i, nil
		}
		if err := r.retry(ctx, &due[i]); err != nil {
			r.log.WithError(err).WithField("notification_id", due[i].ID).Error("failed to update notification")
		}
	}
	return len(due), nil
}

func (r *Retrier) retry(ctx context.Context, failed *models.FailedNotification) error {
	var e events.Event
	if err := json.Unmarshal([]byte(failed.Payload), &e); err != nil {
		return r.markPermanentlyFailed(ctx, failed, "unreadable event payload")
	}

	msg, err := r.dispatcher.compose(ctx, e)
	if errors.Is(err, errNothingToSend) {
		return r.markPermanentlyFailed(ctx, failed, "recipient or record no longer available")
	}
	if err == nil {
		err = r.dispatcher.mailer.Send(ctx, msg)
	}
	if err != nil {
		metrics.Notification("retry_failed")
		return r.updateRetryStatus(ctx, failed, err)
	}

	metrics.Notification("retried")
	return r.markResolved(ctx, failed)
}

func (r *Retrier) updateRetryStatus(ctx context.Context, failed *models.FailedNotification, cause error) error {
	now := r.now()
	failed.RetryCount++

	if failed.RetryCount >= r.cfg.MaxRetries {
		failed.Status = models.NotificationPermanentlyFailed
		failed.ResolvedAt = &now
		failed.ErrorMessage = fmt.Sprintf("max retries reached: %s", cause.Error())
	} else {
		next := now.Add(Backoff(failed.RetryCount))
		failed.NextRetryAt = &next
		failed.ErrorMessage = cause.Error()
	}
	return r.db.WithContext(ctx).Save(failed).Error
}

func (r *Retrier) markResolved(ctx context.Context, failed *models.FailedNotification) error {
	now := r.now()
	failed.Status = models.NotificationResolved
	failed.ResolvedAt = &now
	return r.db.WithContext(ctx).Save(failed).Error
}

func (r *Retrier) markPermanentlyFailed(ctx context.Context, failed *models.FailedNotification, reason string) error {
	now := r.now()
	failed.Status = models.NotificationPermanentlyFailed
	failed.ResolvedAt = &now
	failed.ErrorMessage = reason
	return r.db.WithContext(ctx).Save(failed).Error
}

// Stats summarises the retry queue
type Stats struct {
	Pending           int64  `json:"pending"`
	Resolved          int64  `json:"resolved"`
	PermanentlyFailed int64  `json:"permanently_failed"`
	MaxRetries        int    `json:"max_retries"`
	BatchSize         int    `json:"batch_size"`
	CheckInterval     string `json:"check_interval"`
}

func (r *Retrier) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		MaxRetries:    r.cfg.MaxRetries,
		BatchSize:     r.cfg.BatchSize,
		CheckInterval: r.cfg.Interval.String(),
	}
	counts := map[models.NotificationStatus]*int64{
		models.NotificationPending:           &s.Pending,
		models.NotificationResolved:          &s.Resolved,
		models.NotificationPermanentlyFailed: &s.PermanentlyFailed,
	}
	for status, dst := range counts {
		if err := r.db.WithContext(ctx).Model(&models.FailedNotification{}).Where("status = ?", status).Count(dst).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", status, err)
		}
	}
	return s, nil
}
