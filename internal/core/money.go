// Package core provides money parsing and handling utilities.
//
// Amounts are fixed-point cents. Conversions to and from decimal text go
// through shopspring/decimal so no value ever passes through a float.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest accepted amount in cents, ten trillion currency
// units. About 9200 such rows still sum within an int64.
const MaxAmount int64 = 1_000_000_000_000_000

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(MaxAmount)
)

// ParseMoney converts a decimal string to Money with half-up rounding on the
// third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero is a
// valid amount; negative values and values above MaxAmount are rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 cents
//	ParseMoney("12,345") -> 1235 cents
//	ParseMoney("5000")   -> 500000 cents
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to cents and rejects amounts outside
// [0, MaxAmount].
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(maxCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		return ErrInvalidAmount
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Average returns sum/count rounded to cents, or zero when count is zero.
func Average(sum Money, count int64) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return sum.Decimal().Div(decimal.NewFromInt(count)).Round(2)
}

// GrowthRate returns (current-previous)/previous*100 rounded to two places.
// A zero previous value yields zero.
func GrowthRate(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Mul(hundred).Div(previous).Round(2)
}

// Percentage returns part/total*100 rounded to places, or zero for an empty total.
func Percentage(part, total decimal.Decimal, places int32) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(places)
}
