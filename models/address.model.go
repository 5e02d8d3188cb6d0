package models

import "strings"

// Address represents a shipping or billing address
type Address struct {
	FirstName   string `bson:"first_name" json:"first_name"`
	LastName    string `bson:"last_name" json:"last_name"`
	Company     string `bson:"company,omitempty" json:"company,omitempty"`
	Address1    string `bson:"address_1" json:"address_1"`
	Address2    string `bson:"address_2,omitempty" json:"address_2,omitempty"`
	City        string `bson:"city" json:"city"`
	Province    string `bson:"province,omitempty" json:"province,omitempty"`
	PostalCode  string `bson:"postal_code" json:"postal_code"`
	CountryCode string `bson:"country_code" json:"country_code"`
	Phone       string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// MissingField returns the json name of the first empty required field, or "".
func (a Address) MissingField() string {
	required := []struct {
		name  string
		value string
	}{
		{"first_name", a.FirstName},
		{"last_name", a.LastName},
		{"address_1", a.Address1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country_code", a.CountryCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return f.name
		}
	}
	return ""
}

// Equal compares addresses ignoring case of the country code.
func (a Address) Equal(b Address) bool {
	a.CountryCode = strings.ToLower(a.CountryCode)
	b.CountryCode = strings.ToLower(b.CountryCode)
	return a == b
}
