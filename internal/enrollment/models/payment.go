package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
)

type PaymentMethod string

const (
	MethodCash        PaymentMethod = "cash"
	MethodMobileMoney PaymentMethod = "mobile_money"
	MethodBank        PaymentMethod = "bank"
	MethodOnline      PaymentMethod = "online"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodMobileMoney, MethodBank, MethodOnline:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentValidated PaymentStatus = "validated"
	PaymentRejected  PaymentStatus = "rejected"
)

// Payment is a ledger entry against one fee instance. Pending is the only
// mutable status; validated and rejected are terminal.
type Payment struct {
	ID             id.PaymentID    `json:"id"`
	FeeID          id.FeeID        `json:"fee_id"`
	EnrollmentID   id.EnrollmentID `json:"enrollment_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"method"`
	Status         PaymentStatus   `json:"status"`
	Reference      string          `json:"reference,omitempty"`
	// AgentCode is the cash desk agent who authorized a cash payment.
	AgentCode      string          `json:"agent_code,omitempty"`
	ValidatedBy    *id.StaffID     `json:"validated_by,omitempty"`
	RejectedReason string          `json:"rejected_reason,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *Payment) IsPending() bool {
	return p.Status == PaymentPending
}

// Validate moves a pending payment to validated.
func (p *Payment) Validate(staff id.StaffID, now time.Time) error {
	if !p.IsPending() {
		return dErrors.New(dErrors.CodeInvalidState, "payment is not pending")
	}
	p.Status = PaymentValidated
	p.ValidatedBy = &staff
	p.PaidAt = &now
	p.UpdatedAt = now
	return nil
}

// Reject moves a pending payment to rejected.
func (p *Payment) Reject(staff id.StaffID, reason string, now time.Time) error {
	if !p.IsPending() {
		return dErrors.New(dErrors.CodeInvalidState, "payment is not pending")
	}
	p.Status = PaymentRejected
	p.ValidatedBy = &staff
	p.RejectedReason = reason
	p.UpdatedAt = now
	return nil
}
