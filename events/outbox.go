package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-storefront/clock"
	"go-storefront/models"
)

// Store persists outbox records; see repository.OutboxRepository.
type Store interface {
	Upsert(ctx context.Context, rec models.OutboxRecord) error
	Pending(ctx context.Context, limit int) ([]models.OutboxRecord, error)
	MarkSent(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID, lastError string, dead bool) error
}

// Outbox records order-completed events for the poller to deliver.
type Outbox struct {
	store Store
	clock clock.Clock
}

func NewOutbox(store Store, clk clock.Clock) *Outbox {
	return &Outbox{store: store, clock: clk}
}

// Enqueue is idempotent per event id, so replaying a completion does not emit twice.
func (o *Outbox) Enqueue(ctx context.Context, event models.OrderCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return o.store.Upsert(ctx, models.OutboxRecord{
		EventID:   event.EventID,
		Topic:     models.TopicOrderCompleted,
		Key:       event.OrderID,
		Payload:   payload,
		CreatedAt: o.clock.Now(),
	})
}
