// Package money provides minor-unit monetary amounts with currency metadata.
package money

import (
	"fmt"
	"strings"
)

// Currency represents an ISO 4217 currency code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	AZN Currency = "AZN"
)

// CurrencyInfo contains metadata about a currency.
type CurrencyInfo struct {
	Code       Currency
	NumericISO string // ISO 4217 numeric code, used by some bank protocols
	MinorUnits int
}

var currencies = map[Currency]CurrencyInfo{
	USD: {Code: USD, NumericISO: "840", MinorUnits: 2},
	EUR: {Code: EUR, NumericISO: "978", MinorUnits: 2},
	GBP: {Code: GBP, NumericISO: "826", MinorUnits: 2},
	AZN: {Code: AZN, NumericISO: "944", MinorUnits: 2},
}

// GetCurrencyInfo returns info about a currency.
func GetCurrencyInfo(c Currency) (CurrencyInfo, bool) {
	info, ok := currencies[Currency(strings.ToUpper(string(c)))]
	return info, ok
}

// IsValid reports whether the currency is one the gateway supports.
func IsValid(c Currency) bool {
	_, ok := GetCurrencyInfo(c)
	return ok
}

// Money represents a monetary amount in minor units (cents, qepik, pence).
type Money struct {
	AmountMinor int64    `json:"amount_minor"`
	Currency    Currency `json:"currency"`
}

// New creates a Money value from minor units.
func New(amountMinor int64, currency Currency) Money {
	return Money{AmountMinor: amountMinor, Currency: currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsPositive returns true if the amount is positive.
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

// MajorString formats the amount in major units with the currency's minor
// digits, e.g. 1050 USD -> "10.50". Bank form and XML protocols carry
// amounts in this shape.
func (m Money) MajorString() string {
	info, ok := currencies[m.Currency]
	if !ok || info.MinorUnits == 0 {
		return fmt.Sprintf("%d", m.AmountMinor)
	}
	div := int64(1)
	for i := 0; i < info.MinorUnits; i++ {
		div *= 10
	}
	sign := ""
	minor := m.AmountMinor
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%0*d", sign, minor/div, info.MinorUnits, minor%div)
}

// String renders the amount with its currency code, e.g. "10.50 USD".
func (m Money) String() string {
	return m.MajorString() + " " + string(m.Currency)
}
