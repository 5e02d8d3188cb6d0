package models

// SessionData is the provider-owned payload of a payment session.
// Exactly one arm is set and it always matches Provider; use the typed
// constructors and accessors instead of touching the arms directly.
type SessionData struct {
	Provider ProviderID    `bson:"provider" json:"provider"`
	Manual   *ManualData   `bson:"manual,omitempty" json:"manual,omitempty"`
	Stripe   *StripeData   `bson:"stripe,omitempty" json:"stripe,omitempty"`
	Razorpay *RazorpayData `bson:"razorpay,omitempty" json:"razorpay,omitempty"`
}

type ManualData struct{}

// StripeData holds the payment intent created for a card-element checkout.
type StripeData struct {
	PaymentIntentID string `bson:"payment_intent_id" json:"payment_intent_id"`
	ClientSecret    string `bson:"client_secret" json:"client_secret"`
	Status          string `bson:"status,omitempty" json:"status,omitempty"`
}

// RazorpayData holds the hosted-popup order. OrderID is created server side and is authoritative.
type RazorpayData struct {
	OrderID   string `bson:"order_id" json:"order_id"`
	PaymentID string `bson:"payment_id,omitempty" json:"payment_id,omitempty"`
	Receipt   string `bson:"receipt,omitempty" json:"receipt,omitempty"`
	Status    string `bson:"status,omitempty" json:"status,omitempty"`
}

func NewManualData() SessionData {
	return SessionData{Provider: ProviderManual, Manual: &ManualData{}}
}

func NewStripeData(d StripeData) SessionData {
	return SessionData{Provider: ProviderStripe, Stripe: &d}
}

func NewRazorpayData(d RazorpayData) SessionData {
	return SessionData{Provider: ProviderRazorpay, Razorpay: &d}
}

// Empty reports whether no provider arm has been stored yet, as on a fresh claim.
func (d SessionData) Empty() bool {
	return d.Manual == nil && d.Stripe == nil && d.Razorpay == nil
}

// StripeArm returns the stripe arm when the payload belongs to stripe.
func (d SessionData) StripeArm() (StripeData, bool) {
	if d.Provider != ProviderStripe || d.Stripe == nil {
		return StripeData{}, false
	}
	return *d.Stripe, true
}

// RazorpayArm returns the razorpay arm when the payload belongs to razorpay.
func (d SessionData) RazorpayArm() (RazorpayData, bool) {
	if d.Provider != ProviderRazorpay || d.Razorpay == nil {
		return RazorpayData{}, false
	}
	return *d.Razorpay, true
}

// Equal compares two payloads arm by arm.
func (d SessionData) Equal(o SessionData) bool {
	if d.Provider != o.Provider {
		return false
	}
	switch d.Provider {
	case ProviderStripe:
		a, aok := d.StripeArm()
		b, bok := o.StripeArm()
		return aok == bok && a == b
	case ProviderRazorpay:
		a, aok := d.RazorpayArm()
		b, bok := o.RazorpayArm()
		return aok == bok && a == b
	default:
		return true
	}
}

// ClientProof is what the storefront posts back after the customer finishes
// the gateway interaction. At most one arm is set.
type ClientProof struct {
	Stripe   *StripeProof   `json:"stripe,omitempty"`
	Razorpay *RazorpayProof `json:"razorpay,omitempty"`
}

type StripeProof struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type RazorpayProof struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// MergeProof fills identifiers missing from d with the client-supplied ones.
// A server-created order id is never replaced.
func (d RazorpayData) MergeProof(p RazorpayProof) RazorpayData {
	if d.OrderID == "" {
		d.OrderID = p.OrderID
	}
	if d.PaymentID == "" {
		d.PaymentID = p.PaymentID
	}
	return d
}

// MergeProof fills a missing payment intent id from the client.
func (d StripeData) MergeProof(p StripeProof) StripeData {
	if d.PaymentIntentID == "" {
		d.PaymentIntentID = p.PaymentIntentID
	}
	return d
}
