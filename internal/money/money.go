package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Minor is an amount in minor currency units (tiyin). Every amount
// entering the system is converted exactly once, at the boundary, into
// this type; code holding a Minor never rescales it. That makes the
// scaling heuristic idempotent by construction instead of by caller
// discipline.
type Minor int64

// majorUnitThreshold splits raw amounts: values below it are priced in
// major units and need x100 scaling, values at or above are already minor.
const majorUnitThreshold = 1_000_000

// ToMinor converts a raw integer amount into minor units. When
// alreadyMinor is set the value passes through unchanged; otherwise the
// threshold heuristic decides whether scaling applies.
func ToMinor(value int64, alreadyMinor bool) Minor {
	if alreadyMinor {
		return Minor(value)
	}
	if value >= majorUnitThreshold || value <= -majorUnitThreshold {
		return Minor(value)
	}
	return Minor(value * 100)
}

// FromDecimalString parses a provider-supplied decimal amount in major
// units ("5000", "5000.00") into minor units. Fractional tiyin are
// rejected; float arithmetic is never involved.
func FromDecimalString(value string) (Minor, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", value, err)
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-minor precision", value)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q overflows minor units", value)
	}
	return Minor(shifted.IntPart()), nil
}

// Normalize is a no-op: a Minor value is already in minor units.
// Kept so call sites that re-run normalization stay harmless.
func (m Minor) Normalize() Minor {
	return m
}

// Int64 unwraps the amount for persistence.
func (m Minor) Int64() int64 {
	return int64(m)
}

// MulQty multiplies a unit price by a line quantity with overflow checks.
func (m Minor) MulQty(qty int) (Minor, error) {
	if qty < 0 {
		return 0, fmt.Errorf("negative quantity %d", qty)
	}
	if qty == 0 || m == 0 {
		return 0, nil
	}
	if int64(m) > math.MaxInt64/int64(qty) || int64(m) < math.MinInt64/int64(qty) {
		return 0, fmt.Errorf("amount %d x %d overflows", m, qty)
	}
	return Minor(int64(m) * int64(qty)), nil
}

// Sum adds line totals with overflow checks.
func Sum(amounts ...Minor) (Minor, error) {
	var total int64
	for _, amount := range amounts {
		next := total + int64(amount)
		if (amount > 0 && next < total) || (amount < 0 && next > total) {
			return 0, fmt.Errorf("amount sum overflows")
		}
		total = next
	}
	return Minor(total), nil
}
