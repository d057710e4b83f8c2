package models

import (
	"time"

	"github.com/shopspring/decimal"

	"esfe/pkg/money"
)

// TotalPaid sums validated payments. Pending and rejected entries never count.
func TotalPaid(payments []*Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentValidated {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// Remaining is max(amountToPay - totalPaid, 0).
func Remaining(fee *FeeInstance, payments []*Payment) decimal.Decimal {
	return money.ClampZero(fee.AmountToPay().Sub(TotalPaid(payments)))
}

// Ratchet marks the fee settled when validated payments cover it. It never
// unsettles. The second return value reports whether this call flipped it.
func Ratchet(fee *FeeInstance, payments []*Payment, now time.Time) (settled bool, changed bool) {
	if fee.IsSettled {
		return true, false
	}
	if TotalPaid(payments).GreaterThanOrEqual(fee.AmountToPay()) {
		fee.IsSettled = true
		fee.SettledAt = &now
		return true, true
	}
	return false, false
}

// HasMandatory reports whether any fee is mandatory.
func HasMandatory(fees []*FeeInstance) bool {
	for _, f := range fees {
		if f.Mandatory {
			return true
		}
	}
	return false
}

// Eligible is true when at least one mandatory fee exists and every mandatory
// fee is settled. No mandatory fee means not eligible.
func Eligible(fees []*FeeInstance) bool {
	if !HasMandatory(fees) {
		return false
	}
	for _, f := range fees {
		if f.Mandatory && !f.IsSettled {
			return false
		}
	}
	return true
}
