// Package money holds exact fixed-point amounts tied to an ISO-4217 currency.
//
// Amounts are always integers of the currency's minor unit (pence, cents).
// Conversion to major units only happens in Format/Major.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	minor    int64
	currency string
}

// CurrencyMismatchError is returned when two amounts in different currencies
// are combined. It is a programmer error in normal flows.
type CurrencyMismatchError struct {
	Left  string
	Right string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

// zero-decimal currencies (minor unit == major unit)
var zeroExponent = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
	"ISK": true,
	"UGX": true,
	"XAF": true,
	"XOF": true,
}

func FromMinorUnits(minor int64, currency string) Money {
	return Money{minor: minor, currency: NormalizeCurrency(currency)}
}

func Zero(currency string) Money { return FromMinorUnits(0, currency) }

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCurrency reports whether code looks like an ISO-4217 alpha code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		ch := code[i]
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') {
			return false
		}
	}
	return true
}

func (m Money) MinorUnits() int64 { return m.minor }
func (m Money) Currency() string  { return m.currency }
func (m Money) IsZero() bool      { return m.minor == 0 }
func (m Money) IsNegative() bool  { return m.minor < 0 }

func (m Money) Add(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, &CurrencyMismatchError{Left: m.currency, Right: o.currency}
	}
	return Money{minor: m.minor + o.minor, currency: m.currency}, nil
}

func (m Money) Subtract(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, &CurrencyMismatchError{Left: m.currency, Right: o.currency}
	}
	return Money{minor: m.minor - o.minor, currency: m.currency}, nil
}

// MultiplyInt scales by a whole number (quantity). Exact.
func (m Money) MultiplyInt(n int64) Money {
	return Money{minor: m.minor * n, currency: m.currency}
}

// Multiply scales by an arbitrary decimal factor (tax rate, discount ratio)
// and rounds half-up (half away from zero) to a whole minor unit.
func (m Money) Multiply(factor decimal.Decimal) Money {
	v := decimal.NewFromInt(m.minor).Mul(factor).Round(0)
	return Money{minor: v.IntPart(), currency: m.currency}
}

func (m Money) Equals(o Money) bool {
	return m.currency == o.currency && m.minor == o.minor
}

// Sum adds amounts that all share currency. An empty list is zero.
func Sum(currency string, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// Exponent is the number of minor-unit digits for the currency.
func Exponent(currency string) int32 {
	if zeroExponent[NormalizeCurrency(currency)] {
		return 0
	}
	return 2
}

// Major returns the amount in major units as a decimal string, e.g. "49.99".
func (m Money) Major() string {
	exp := Exponent(m.currency)
	return decimal.New(m.minor, -exp).StringFixed(exp)
}

// Format renders the amount for humans, e.g. "£49.99" or "-€5.00".
func (m Money) Format() string {
	exp := Exponent(m.currency)
	abs := m.minor
	sign := ""
	if abs < 0 {
		abs = -abs
		sign = "-"
	}
	return sign + currencySymbol(m.currency) + decimal.New(abs, -exp).StringFixed(exp)
}

func (m Money) String() string { return m.Format() }

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Formatted string `json:"formatted"`
	}{m.minor, m.currency, m.Format()})
}

func currencySymbol(code string) string {
	switch code {
	case "EUR":
		return "€"
	case "USD":
		return "$"
	case "GBP":
		return "£"
	case "JPY":
		return "¥"
	case "TRY":
		return "₺"
	default:
		return code + " "
	}
}
