// Package money holds the fixed-point arithmetic rules shared by pricing
// and reconciliation. All amounts are shopspring decimals; rounding happens
// once, at the edge, never per intermediate unit.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits maps ISO 4217 codes to their minor-unit exponent. Codes not
// listed fall back to two decimal places.
var minorUnits = map[string]int32{
	"BHD": 3,
	"CLP": 0,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"VND": 0,
}

// MinorUnits returns the number of decimal places used by the currency.
func MinorUnits(currency string) int32 {
	if exp, ok := minorUnits[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return exp
	}
	return 2
}

// Round rounds an exact amount to the currency's minor units using
// banker's rounding (round half to even).
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(MinorUnits(currency))
}

// Equal reports whether two amounts are numerically equal regardless of
// exponent representation.
func Equal(a, b decimal.Decimal) bool {
	return a.Cmp(b) == 0
}
