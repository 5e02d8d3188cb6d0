package models

import "time"

// Region scopes a cart to a currency and a set of countries.
type Region struct {
	ID           string   `bson:"_id" json:"id"`
	Name         string   `bson:"name" json:"name"`
	CurrencyCode string   `bson:"currency_code" json:"currency_code"`
	Countries    []string `bson:"countries" json:"countries"`
}

// Variant is the minimal catalog view needed to price a line item.
// Prices are keyed by lower-case currency code.
type Variant struct {
	ID     string           `bson:"_id" json:"id"`
	Title  string           `bson:"title" json:"title"`
	Prices map[string]int64 `bson:"prices" json:"prices"`
}

// ShippingOption is a delivery choice offered in a region.
type ShippingOption struct {
	ID       string `bson:"_id" json:"id"`
	Name     string `bson:"name" json:"name"`
	RegionID string `bson:"region_id" json:"region_id"`
	Amount   int64  `bson:"amount" json:"amount"`
}

type PromotionType string

const (
	PromotionPercentage PromotionType = "percentage"
	PromotionFixed      PromotionType = "fixed"
)

// Promotion is a discount code. Value is a percentage (0-100) or a fixed minor-unit amount.
type Promotion struct {
	Code     string        `bson:"_id" json:"code"`
	Type     PromotionType `bson:"type" json:"type"`
	Value    int64         `bson:"value" json:"value"`
	RegionID string        `bson:"region_id,omitempty" json:"region_id,omitempty"`
	StartsAt *time.Time    `bson:"starts_at,omitempty" json:"starts_at,omitempty"`
	EndsAt   *time.Time    `bson:"ends_at,omitempty" json:"ends_at,omitempty"`
}

// ActiveAt reports whether the promotion can be applied at t in regionID.
func (p Promotion) ActiveAt(t time.Time, regionID string) bool {
	if p.RegionID != "" && p.RegionID != regionID {
		return false
	}
	if p.StartsAt != nil && t.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && !t.Before(*p.EndsAt) {
		return false
	}
	switch p.Type {
	case PromotionPercentage:
		return p.Value > 0 && p.Value <= 100
	case PromotionFixed:
		return p.Value > 0
	default:
		return false
	}
}
