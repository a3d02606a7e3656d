// Package money converts between decimal amounts at the edges of the system
// and the integer minor units stored in the ledger.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"payrecon/kit/db"
)

// Scale is the number of minor-unit digits; the system is single-currency.
const Scale = 2

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.New(1, Scale)

// FromDecimal converts d to minor units. Amounts with more than two decimal
// places are rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return 0, errors.Join(db.ErrInvalid, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, d, Scale))
	}
	minor := d.Mul(hundred)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<53)) || minor.LessThan(decimal.NewFromInt(-(1 << 53))) {
		return 0, errors.Join(db.ErrInvalid, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d))
	}
	return minor.IntPart(), nil
}

// Parse reads a decimal string such as "40.00" into minor units.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Join(db.ErrInvalid, fmt.Errorf("%w: %q", ErrInvalidAmount, s))
	}
	return FromDecimal(d)
}

// ToDecimal converts minor units to a decimal value.
func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// Format renders minor units with exactly two decimal places, e.g. 4000 -> "40.00".
func Format(minor int64) string {
	return ToDecimal(minor).StringFixed(Scale)
}
