package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"go-storefront/models"
)

const notificationsGroup = "storefront-notifications"

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher dispatches outbox records to Kafka, keyed by order id.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  models.TopicOrderCompleted,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, rec models.OutboxRecord) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Key),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(rec.Topic)},
			{Key: "event_id", Value: []byte(rec.EventID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// EventHandler reacts to one order-completed event.
type EventHandler interface {
	Handle(ctx context.Context, event models.OrderCompletedEvent) error
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

const (
	readRetryMin = time.Second
	readRetryMax = 30 * time.Second
)

// Consumer feeds order-completed events from Kafka to a handler.
type Consumer struct {
	reader     MessageReader
	handler    EventHandler
	retryDelay time.Duration
}

func NewConsumer(brokers []string, handler EventHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    models.TopicOrderCompleted,
		GroupID:  notificationsGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, handler: handler, retryDelay: readRetryMin}
}

// Run reads until ctx ends. Read errors back off, doubling up to readRetryMax.
func (c *Consumer) Run(ctx context.Context) {
	delay := c.retryDelay
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Printf("error reading message, retrying in %s: %v", delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, readRetryMax)
			continue
		}
		delay = c.retryDelay
		if err := c.handleMessage(ctx, m.Value); err != nil {
			log.Printf("order event not handled key=%s offset=%d, manual follow-up required: %v", m.Key, m.Offset, err)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, value []byte) error {
	var event models.OrderCompletedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return c.handler.Handle(ctx, event)
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		log.Printf("error closing kafka reader: %v", err)
	}
}
