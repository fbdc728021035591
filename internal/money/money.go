// Package money converts between decimal currency amounts and integer
// minor units. All arithmetic on amounts elsewhere in the system happens
// in minor units; decimals exist only at the edges (input, display).
package money

import (
	"errors"
	"fmt"
	"math"
)

// MaxMinorUnits caps supported amounts; round-tripping is exact below it.
const MaxMinorUnits = int64(1_000_000_000)

var ErrInvalidAmount = errors.New("invalid amount")

// ToMinorUnits converts a decimal amount to minor units, rounding
// half-away-from-zero. Negative and non-finite input is rejected.
func ToMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: not finite", ErrInvalidAmount)
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	minor := int64(math.Round(amount * 100))
	if minor >= MaxMinorUnits {
		return 0, fmt.Errorf("%w: exceeds %d minor units", ErrInvalidAmount, MaxMinorUnits)
	}
	return minor, nil
}

// ToDecimal renders minor units as the two-decimal display value.
func ToDecimal(minor int64) float64 {
	return float64(minor) / 100
}

// ApplyFeeBps computes a proportional fee in minor units from basis
// points, with the same half-away-from-zero rounding. bps below zero is
// clamped to zero.
func ApplyFeeBps(amountMinor, bps int64) int64 {
	if bps < 0 {
		bps = 0
	}
	return int64(math.Round(float64(amountMinor) * float64(bps) / 10000))
}
