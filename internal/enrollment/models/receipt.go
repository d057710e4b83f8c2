package models

import (
	"fmt"
	"time"

	id "esfe/pkg/domain"
)

// Sequence scopes for the per-year counters.
const (
	SequenceMatricule = "matricule"
	SequenceReceipt   = "receipt"
)

// Receipt is the proof of one validated payment.
type Receipt struct {
	ID           id.ReceiptID    `json:"id"`
	PaymentID    id.PaymentID    `json:"payment_id"`
	EnrollmentID id.EnrollmentID `json:"enrollment_id"`
	Reference    string          `json:"reference"`
	Year         int             `json:"year"`
	Sequence     int64           `json:"sequence"`
	ArtifactRef  string          `json:"artifact_ref,omitempty"`
	IssuedAt     time.Time       `json:"issued_at"`
}

// StudentProfile is the student account created on first activation.
type StudentProfile struct {
	ID           id.StudentID    `json:"id"`
	EnrollmentID id.EnrollmentID `json:"enrollment_id"`
	Matricule    string          `json:"matricule"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	ActivatedAt  time.Time       `json:"activated_at"`
}

// FormatMatricule renders ESFE-2025-000001.
func FormatMatricule(institution string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", institution, year, seq)
}

// FormatReceiptReference renders ESFE-2025-000042.
func FormatReceiptReference(institution string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", institution, year, seq)
}
