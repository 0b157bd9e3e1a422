package booking

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a decimal price string (e.g. "100.00") into minor units.
// Rejects non-positive amounts and sub-cent precision.
func ParsePrice(price string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return 0, NewLedgerError(CodeValidation, "price is not a valid decimal")
	}
	if !d.IsPositive() {
		return 0, NewLedgerError(CodeValidation, "price must be greater than zero")
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, NewLedgerError(CodeValidation, "price has sub-cent precision")
	}
	return cents.IntPart(), nil
}

// PlatformFeeCents computes the platform's cut of a booking, rounded to the
// nearest cent.
func PlatformFeeCents(amountCents int64, feePercent float64) int64 {
	fee := decimal.NewFromInt(amountCents).Mul(decimal.NewFromFloat(feePercent))
	return fee.Round(0).IntPart()
}
