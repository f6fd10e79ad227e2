// Package money provides the decimal helpers shared by every calculator.
//
// Amounts and rates are shopspring decimals. Rounding is HALF_UP (ties away
// from zero), which is what decimal.Round and decimal.DivRound implement.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Scales used across the engine.
const (
	AmountPlaces = 2 // currency amounts
	IndexPlaces  = 4 // CVPI, multipliers, derived rates
)

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Hundred = decimal.NewFromInt(100)
)

// Round2 rounds an amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// Round4 rounds an index or multiplier to four places.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(IndexPlaces)
}

// Parse converts a decimal string (e.g. "1.50") into a Decimal.
// Returns (zero, false) on invalid input. Empty string is zero.
//
// Unlike decimal.NewFromString, exponent notation is rejected: money
// crosses the API boundary as plain decimal strings only.
func Parse(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, true
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// MustParse is Parse for package-level constants and tests. It panics on
// invalid input.
func MustParse(s string) decimal.Decimal {
	d, ok := Parse(s)
	if !ok {
		panic("money: invalid decimal literal " + s)
	}
	return d
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Format renders d with exactly places decimals (e.g. "5815.00").
func Format(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
