package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"jpy": true,
	"krw": true,
	"vnd": true,
	"clp": true,
}

// CurrencyExponent is the number of minor-unit digits for a currency code.
func CurrencyExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// FormatAmount renders a minor-unit amount as "12.34 USD".
func FormatAmount(amount int64, currency string) string {
	exp := CurrencyExponent(currency)
	d := decimal.New(amount, -exp)
	return d.StringFixed(exp) + " " + strings.ToUpper(currency)
}
