package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PublicStatus is what the holder of a public token may see. Fees are only
// filled in when the access code was presented.
type PublicStatus struct {
	Token         string          `json:"token"`
	CandidateName string          `json:"candidate_name"`
	Programme     string          `json:"programme"`
	AcademicYear  string          `json:"academic_year"`
	Status        Status          `json:"status"`
	IsActive      bool            `json:"is_active"`
	Matricule     string          `json:"matricule,omitempty"`
	TotalDue      decimal.Decimal `json:"total_due"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	Remaining     decimal.Decimal `json:"remaining"`
	Detailed      bool            `json:"detailed"`
	Fees          []PublicFee     `json:"fees,omitempty"`
}

type PublicFee struct {
	Label       string          `json:"label"`
	Mandatory   bool            `json:"mandatory"`
	AmountToPay decimal.Decimal `json:"amount_to_pay"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Remaining   decimal.Decimal `json:"remaining"`
	IsSettled   bool            `json:"is_settled"`
	Payments    []PublicPayment `json:"payments,omitempty"`
}

type PublicPayment struct {
	Amount           decimal.Decimal `json:"amount"`
	Method           PaymentMethod   `json:"method"`
	Status           PaymentStatus   `json:"status"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	ReceiptReference string          `json:"receipt_reference,omitempty"`
}

// StatusSnapshot is the cacheable form of a public status: the detailed view
// plus the hash that gates it.
type StatusSnapshot struct {
	Status         PublicStatus `json:"status"`
	AccessCodeHash string       `json:"access_code_hash"`
}

// Summary strips the per-fee detail.
func (s *StatusSnapshot) Summary() PublicStatus {
	out := s.Status
	out.Fees = nil
	out.Detailed = false
	return out
}

// ReceiptView is the public rendering of one receipt.
type ReceiptView struct {
	Reference       string          `json:"reference"`
	IssuedAt        time.Time       `json:"issued_at"`
	CandidateName   string          `json:"candidate_name"`
	Matricule       string          `json:"matricule,omitempty"`
	FeeLabel        string          `json:"fee_label"`
	Amount          decimal.Decimal `json:"amount"`
	Method          PaymentMethod   `json:"method"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	VerificationURL string          `json:"verification_url"`
	ArtifactRef     string          `json:"artifact_ref,omitempty"`
}

// Ledger is the staff view of one enrollment.
type Ledger struct {
	Enrollment *Enrollment     `json:"enrollment"`
	Fees       []FeeBalance    `json:"fees"`
	Payments   []*Payment      `json:"payments"`
	Eligible   bool            `json:"eligible"`
	Student    *StudentProfile `json:"student,omitempty"`
}
