package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "esfe/pkg/domain"
)

// FeeInstance is a fee rule frozen onto one enrollment. Label, type, order
// and the mandatory flag are copied along with the amount so later catalog
// edits never reach it.
type FeeInstance struct {
	ID             id.FeeID         `json:"id"`
	EnrollmentID   id.EnrollmentID  `json:"enrollment_id"`
	RuleID         id.FeeRuleID     `json:"rule_id"`
	Label          string           `json:"label"`
	Type           string           `json:"type"`
	Order          int              `json:"order"`
	Mandatory      bool             `json:"mandatory"`
	AmountExpected decimal.Decimal  `json:"amount_expected"`
	AmountOverride *decimal.Decimal `json:"amount_override,omitempty"`
	IsSettled      bool             `json:"is_settled"`
	SettledAt      *time.Time       `json:"settled_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AmountToPay is the override when present, else the frozen amount.
func (f *FeeInstance) AmountToPay() decimal.Decimal {
	if f.AmountOverride != nil {
		return *f.AmountOverride
	}
	return f.AmountExpected
}

// FeeBalance is a fee with its ledger-derived totals.
type FeeBalance struct {
	*FeeInstance
	AmountToPay decimal.Decimal `json:"amount_to_pay"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Remaining   decimal.Decimal `json:"remaining"`
}

func NewFeeBalance(fee *FeeInstance, payments []*Payment) FeeBalance {
	return FeeBalance{
		FeeInstance: fee,
		AmountToPay: fee.AmountToPay(),
		TotalPaid:   TotalPaid(payments),
		Remaining:   Remaining(fee, payments),
	}
}
