package models

import "time"

// Order is the immutable snapshot created once from a completed cart
type Order struct {
	ID                  string         `bson:"_id" json:"id"`
	CartID              string         `bson:"cart_id" json:"cart_id"`
	CustomerID          string         `bson:"customer_id" json:"customer_id"`
	Email               string         `bson:"email" json:"email"`
	RegionID            string         `bson:"region_id" json:"region_id"`
	CurrencyCode        string         `bson:"currency_code" json:"currency_code"`
	Items               []LineItem     `bson:"items" json:"items"`
	ShippingAddress     Address        `bson:"shipping_address" json:"shipping_address"`
	BillingAddress      Address        `bson:"billing_address" json:"billing_address"`
	ShippingMethod      ShippingMethod `bson:"shipping_method" json:"shipping_method"`
	PromoCodes          []string       `bson:"promo_codes" json:"promo_codes"`
	Totals              Totals         `bson:"totals" json:"totals"`
	PaymentCollectionID string         `bson:"payment_collection_id,omitempty" json:"payment_collection_id,omitempty"`
	PaymentID           string         `bson:"payment_id,omitempty" json:"payment_id,omitempty"`
	CreatedAt           time.Time      `bson:"created_at" json:"created_at"`
}

// OrderCompletedEvent is the minimal contract handed to invoice and e-mail collaborators.
type OrderCompletedEvent struct {
	EventID      string     `bson:"event_id" json:"event_id"`
	OrderID      string     `bson:"order_id" json:"order_id"`
	Email        string     `bson:"email" json:"email"`
	CurrencyCode string     `bson:"currency_code" json:"currency_code"`
	Totals       Totals     `bson:"totals" json:"totals"`
	Items        []LineItem `bson:"items" json:"items"`
	OccurredAt   time.Time  `bson:"occurred_at" json:"occurred_at"`
}

const TopicOrderCompleted = "order.completed"

// NewOrderCompletedEvent derives the event from an order. The event id equals the order id
// so that re-enqueueing on a replayed completion is a no-op.
func NewOrderCompletedEvent(o Order) OrderCompletedEvent {
	return OrderCompletedEvent{
		EventID:      o.ID,
		OrderID:      o.ID,
		Email:        o.Email,
		CurrencyCode: o.CurrencyCode,
		Totals:       o.Totals,
		Items:        o.Items,
		OccurredAt:   o.CreatedAt,
	}
}
