package events

import (
	"context"
	"log"
	"time"

	"go-storefront/clock"
	"go-storefront/metrics"
	"go-storefront/models"
)

// Dispatcher delivers one outbox record.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec models.OutboxRecord) error
}

type Poller struct {
	store       Store
	dispatcher  Dispatcher
	clock       clock.Clock
	metrics     *metrics.CheckoutMetrics
	tick        time.Duration
	batch       int
	maxAttempts int
}

func NewPoller(store Store, dispatcher Dispatcher, clk clock.Clock, m *metrics.CheckoutMetrics) *Poller {
	return &Poller{
		store:       store,
		dispatcher:  dispatcher,
		clock:       clk,
		metrics:     m,
		tick:        2 * time.Second,
		batch:       100,
		maxAttempts: 5,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending delivers one batch. A record that keeps failing is marked dead
// after maxAttempts and left for manual follow-up.
func (p *Poller) ProcessPending(ctx context.Context) {
	records, err := p.store.Pending(ctx, p.batch)
	if err != nil {
		log.Printf("failed to fetch outbox records: %v", err)
		return
	}

	for _, rec := range records {
		if err := p.dispatcher.Dispatch(ctx, rec); err != nil {
			dead := rec.Attempts+1 >= p.maxAttempts
			if markErr := p.store.MarkFailed(ctx, rec.EventID, err.Error(), dead); markErr != nil {
				log.Printf("failed to mark outbox record failed event=%s: %v", rec.EventID, markErr)
			}
			if dead {
				log.Printf("order event dead after %d attempts event=%s topic=%s, manual follow-up required: %v", rec.Attempts+1, rec.EventID, rec.Topic, err)
				p.metrics.OutboxDead()
			} else {
				log.Printf("failed to dispatch order event event=%s attempt=%d: %v", rec.EventID, rec.Attempts+1, err)
			}
			continue
		}

		if err := p.store.MarkSent(ctx, rec.EventID, p.clock.Now()); err != nil {
			log.Printf("failed to mark outbox record sent event=%s: %v", rec.EventID, err)
		}
	}
}
