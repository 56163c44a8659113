package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads events in a consumer group and hands them to a Handler
type KafkaConsumer struct {
	reader  messageReader
	log     *logrus.Logger
	backoff time.Duration
}

const maxHandlerBackoff = 30 * time.Second

// NewKafkaConsumer joins group on topic
func NewKafkaConsumer(broker, topic, group string, log *logrus.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return &KafkaConsumer{reader: reader, log: log, backoff: time.Second}
}

// Run consumes until ctx is cancelled. A message is committed once the handler accepted
// it; a failing handler is retried on the same message with backoff, so the offset never
// moves past an event that was not handled. Malformed and unprocessable events are
// committed and logged.
func (kc *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	kc.log.Info("event consumer started")

	for {
		msg, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			kc.log.WithError(err).Error("error reading event message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !kc.process(ctx, msg, h) {
			continue
		}

		if err := kc.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			kc.log.WithError(err).Warn("failed to commit offset")
		}
	}
}

// process reports whether msg may be committed. It only returns false when ctx ends
// before the handler succeeded.
func (kc *KafkaConsumer) process(ctx context.Context, msg kafka.Message, h Handler) bool {
	e, err := Decode(msg.Value)
	if err != nil {
		kc.log.WithError(err).WithField("offset", msg.Offset).Error("discarding malformed event")
		return true
	}

	entry := kc.log.WithFields(logrus.Fields{
		"event_id":    e.ID,
		"event_type":  e.Type,
		"business_id": e.BusinessID,
	})

	wait := kc.backoff
	if wait <= 0 {
		wait = time.Second
	}
	for attempt := 1; ; attempt++ {
		err := h.Handle(ctx, e)
		if err == nil {
			entry.Debug("event handled")
			return true
		}
		if errors.Is(err, ErrUnprocessable) {
			entry.WithError(err).Error("discarding unprocessable event")
			return true
		}
		entry.WithError(err).WithField("attempt", attempt).Error("event handler failed, retrying")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxHandlerBackoff {
			wait = maxHandlerBackoff
		}
	}
}

// Decode parses a message value into an Event
func Decode(value []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return Event{}, errors.New("event without id or type")
	}
	return e, nil
}

// Close closes the Kafka consumer
func (kc *KafkaConsumer) Close() error {
	if err := kc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close event reader: %w", err)
	}
	return nil
}
