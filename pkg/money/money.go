// Package money holds amount helpers on top of shopspring/decimal.
//
// Amounts are FCFA and carry at most two fractional digits. Nothing in the
// pipeline uses float64 for money.
package money

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "esfe/pkg/domain-errors"
)

const maxScale = 2

// Parse reads a non-negative amount such as "410000" or "1500.50".
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, "invalid amount")
	}
	if err := CheckNonNegative(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckNonNegative rejects negative amounts and sub-cent precision.
func CheckNonNegative(d decimal.Decimal) error {
	if d.IsNegative() {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must not be negative")
	}
	if d.Exponent() < -maxScale && !d.Equal(d.Round(maxScale)) {
		return dErrors.New(dErrors.CodeInvalidInput, "amount has too many decimal places")
	}
	return nil
}

// CheckPositive is CheckNonNegative plus a strict zero check, used for payments.
func CheckPositive(d decimal.Decimal) error {
	if err := CheckNonNegative(d); err != nil {
		return err
	}
	if d.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be greater than zero")
	}
	return nil
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Format renders an amount with thin grouping, e.g. "410 000 FCFA".
func Format(d decimal.Decimal) string {
	s := d.StringFixedBank(0)
	if !d.Equal(d.Round(0)) {
		s = d.StringFixed(maxScale)
	}
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if frac != "" {
		out += "," + frac
	}
	if neg {
		out = "-" + out
	}
	return out + " FCFA"
}
