package models

import "time"

// LineItem represents a priced variant in the cart
type LineItem struct {
	VariantID string `bson:"variant_id" json:"variant_id"`
	Title     string `bson:"title" json:"title"`
	Quantity  int    `bson:"quantity" json:"quantity"`
	UnitPrice int64  `bson:"unit_price" json:"unit_price"`
}

// Total is quantity times unit price.
func (li LineItem) Total() int64 {
	return int64(li.Quantity) * li.UnitPrice
}

// ShippingMethod is the shipping option attached to a cart, priced at selection time.
type ShippingMethod struct {
	OptionID string `bson:"option_id" json:"option_id"`
	Name     string `bson:"name" json:"name"`
	Amount   int64  `bson:"amount" json:"amount"`
}

// AppliedPromotion is the snapshot of a promotion stored on the cart.
type AppliedPromotion struct {
	Code  string        `bson:"code" json:"code"`
	Type  PromotionType `bson:"type" json:"type"`
	Value int64         `bson:"value" json:"value"`
}

// Cart represents a customer's mutable pre-purchase state.
// A completed cart is retired (Active=false, OrderID set) and kept as the index to its order.
type Cart struct {
	ID                  string             `bson:"_id" json:"id"`
	CustomerID          string             `bson:"customer_id" json:"customer_id"`
	Email               string             `bson:"email,omitempty" json:"email,omitempty"`
	RegionID            string             `bson:"region_id" json:"region_id"`
	CurrencyCode        string             `bson:"currency_code" json:"currency_code"`
	Items               []LineItem         `bson:"items" json:"items"`
	ShippingAddress     *Address           `bson:"shipping_address,omitempty" json:"shipping_address,omitempty"`
	BillingAddress      *Address           `bson:"billing_address,omitempty" json:"billing_address,omitempty"`
	ShippingMethod      *ShippingMethod    `bson:"shipping_method,omitempty" json:"shipping_method,omitempty"`
	Promotions          []AppliedPromotion `bson:"promotions" json:"promotions"`
	PaymentCollectionID string             `bson:"payment_collection_id,omitempty" json:"payment_collection_id,omitempty"`
	Active              bool               `bson:"active" json:"active"`
	OrderID             string             `bson:"order_id,omitempty" json:"order_id,omitempty"`
	CompletedAt         *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

// Totals are derived from the cart contents; they are never stored.
type Totals struct {
	Subtotal      int64 `json:"subtotal"`
	ShippingTotal int64 `json:"shipping_total"`
	DiscountTotal int64 `json:"discount_total"`
	Total         int64 `json:"total"`
}

// Retired reports whether the cart has been converted into an order.
func (c *Cart) Retired() bool {
	return c.OrderID != ""
}

// PromoCodes lists the applied promotion codes in application order.
func (c *Cart) PromoCodes() []string {
	codes := make([]string, 0, len(c.Promotions))
	for _, p := range c.Promotions {
		codes = append(codes, p.Code)
	}
	return codes
}

// Totals computes subtotal, shipping, discount and grand total.
// Percentage promotions apply to the subtotal; fixed promotions may also offset shipping.
// The grand total never goes below zero.
func (c *Cart) Totals() Totals {
	var t Totals
	for _, item := range c.Items {
		t.Subtotal += item.Total()
	}
	if c.ShippingMethod != nil {
		t.ShippingTotal = c.ShippingMethod.Amount
	}

	var discount int64
	for _, p := range c.Promotions {
		switch p.Type {
		case PromotionPercentage:
			discount += t.Subtotal * p.Value / 100
		case PromotionFixed:
			discount += p.Value
		}
	}
	gross := t.Subtotal + t.ShippingTotal
	if discount > gross {
		discount = gross
	}
	t.DiscountTotal = discount
	t.Total = gross - discount
	return t
}
