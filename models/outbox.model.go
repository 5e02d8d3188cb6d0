package models

import "time"

// OutboxRecord is a pending order-completion side effect. EventID is the order id.
type OutboxRecord struct {
	EventID   string     `bson:"_id" json:"event_id"`
	Topic     string     `bson:"topic" json:"topic"`
	Key       string     `bson:"key" json:"key"`
	Payload   []byte     `bson:"payload" json:"payload"`
	Attempts  int        `bson:"attempts" json:"attempts"`
	LastError string     `bson:"last_error,omitempty" json:"last_error,omitempty"`
	SentAt    *time.Time `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
	Dead      bool       `bson:"dead" json:"dead"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
}
