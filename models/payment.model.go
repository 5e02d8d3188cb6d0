package models

import "time"

// ProviderID identifies a payment gateway adapter.
type ProviderID string

const (
	ProviderManual   ProviderID = "pp_system_default"
	ProviderStripe   ProviderID = "pp_stripe_stripe"
	ProviderRazorpay ProviderID = "pp_razorpay_razorpay"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionAuthorized SessionStatus = "authorized"
	SessionCaptured   SessionStatus = "captured"
	SessionCanceled   SessionStatus = "canceled"
	SessionError      SessionStatus = "error"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending:    {SessionAuthorized, SessionCaptured, SessionCanceled, SessionError},
	SessionAuthorized: {SessionCaptured, SessionCanceled},
}

// CanTransitionTo reports whether moving from s to next respects the forward-only lifecycle.
// error is reachable from pending only.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active sessions count toward the payment step.
func (s SessionStatus) Active() bool {
	return s == SessionPending || s == SessionAuthorized
}

// PaymentCollection ties a cart to its payment attempts.
type PaymentCollection struct {
	ID           string    `bson:"_id" json:"id"`
	CartID       string    `bson:"cart_id" json:"cart_id"`
	Amount       int64     `bson:"amount" json:"amount"`
	CurrencyCode string    `bson:"currency_code" json:"currency_code"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// PaymentSession is one attempt to pay through one provider.
type PaymentSession struct {
	ID                  string        `bson:"_id" json:"id"`
	PaymentCollectionID string        `bson:"payment_collection_id" json:"payment_collection_id"`
	ProviderID          ProviderID    `bson:"provider_id" json:"provider_id"`
	Amount              int64         `bson:"amount" json:"amount"`
	CurrencyCode        string        `bson:"currency_code" json:"currency_code"`
	Status              SessionStatus `bson:"status" json:"status"`
	Data                SessionData   `bson:"data" json:"-"`
	ErrorReason         string        `bson:"error_reason,omitempty" json:"-"`
	CreatedAt           time.Time     `bson:"created_at" json:"created_at"`
	AuthorizedAt        *time.Time    `bson:"authorized_at,omitempty" json:"authorized_at,omitempty"`
	UpdatedAt           time.Time     `bson:"updated_at" json:"updated_at"`
}

// Payment is the immutable record of an authorized session.
type Payment struct {
	ID                  string      `bson:"_id" json:"id"`
	SessionID           string      `bson:"session_id" json:"session_id"`
	PaymentCollectionID string      `bson:"payment_collection_id" json:"payment_collection_id"`
	ProviderID          ProviderID  `bson:"provider_id" json:"provider_id"`
	Amount              int64       `bson:"amount" json:"amount"`
	CurrencyCode        string      `bson:"currency_code" json:"currency_code"`
	Data                SessionData `bson:"data" json:"-"`
	CreatedAt           time.Time   `bson:"created_at" json:"created_at"`
}
