// Package core provides money parsing and handling utilities.
//
// Amounts are held as signed integer cents and converted to and from
// decimal major units at the JSON boundary.
package core

import (
	"math"

	"github.com/shopspring/decimal"
)

var maxMajorUnits = decimal.New(math.MaxInt64/100, 0)

// MoneyFromDecimal converts a major-unit decimal to cents. Values with
// more than two decimal places are rejected rather than rounded.
//
// Examples:
//
//	MoneyFromDecimal(12.34)  -> 1234
//	MoneyFromDecimal(-3.5)   -> -350
//	MoneyFromDecimal(12.345) -> ErrInvalidAmount
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.Abs().GreaterThan(maxMajorUnits) {
		return Money{}, ErrInvalidAmount
	}
	if !d.Equal(d.Round(2)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Shift(2).IntPart()}, nil
}

// MoneyFromFloat converts a JSON number in major units to cents.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// MarshalJSON renders the amount as a bare JSON number in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}
