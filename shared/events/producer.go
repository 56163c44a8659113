package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/bizworx/bizworx-api/shared/metrics"
)

// ErrQueueFull is returned when the producer cannot accept more events
var ErrQueueFull = errors.New("event queue full, event dropped")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes events through a buffered queue drained by a worker pool
type KafkaProducer struct {
	writer   messageWriter
	topic    string
	queue    chan Event
	workers  int
	shutdown chan struct{}
	wg       sync.WaitGroup
	log      *logrus.Logger
}

// NewKafkaProducer starts a producer writing to topic on broker
func NewKafkaProducer(broker, topic string, log *logrus.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
	return newProducer(writer, topic, 1000, 4, log)
}

func newProducer(w messageWriter, topic string, queueSize, workers int, log *logrus.Logger) *KafkaProducer {
	kp := &KafkaProducer{
		writer:   w,
		topic:    topic,
		queue:    make(chan Event, queueSize),
		workers:  workers,
		shutdown: make(chan struct{}),
		log:      log,
	}
	for i := 0; i < kp.workers; i++ {
		kp.wg.Add(1)
		go kp.worker(i)
	}
	log.WithFields(logrus.Fields{"workers": workers, "topic": topic}).Info("kafka producer started")
	return kp
}

func (kp *KafkaProducer) worker(id int) {
	defer kp.wg.Done()

	for {
		select {
		case e := <-kp.queue:
			kp.send(id, e)
		case <-kp.shutdown:
			// flush what is already queued
			for {
				select {
				case e := <-kp.queue:
					kp.send(id, e)
				default:
					return
				}
			}
		}
	}
}

func (kp *KafkaProducer) send(worker int, e Event) {
	if err := kp.write(e); err != nil {
		kp.log.WithFields(logrus.Fields{
			"worker":      worker,
			"event_id":    e.ID,
			"event_type":  e.Type,
			"business_id": e.BusinessID,
		}).WithError(err).Error("failed to publish event")
	}
}

// Publish queues e without blocking
func (kp *KafkaProducer) Publish(_ context.Context, e Event) error {
	select {
	case kp.queue <- e:
		return nil
	default:
		metrics.EventDropped()
		return ErrQueueFull
	}
}

func (kp *KafkaProducer) write(e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: kp.topic,
		Key:   []byte(e.BusinessID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "business_id", Value: []byte(e.BusinessID.String())},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}
	return nil
}

// Close stops the workers after the queue is flushed and closes the writer
func (kp *KafkaProducer) Close() error {
	close(kp.shutdown)
	kp.wg.Wait()

	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	kp.log.Info("kafka producer stopped")
	return nil
}
