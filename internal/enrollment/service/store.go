package service

import (
	"context"

	"esfe/internal/enrollment/models"
	id "esfe/pkg/domain"
)

// Store is the persistence contract of the pipeline. Methods named ...ForUpdate
// take a row lock that lasts until the surrounding transaction ends; outside a
// transaction they behave like plain reads.
//
// Stores return sentinel.ErrNotFound, sentinel.ErrConflict (unique
// constraint or retryable contention) and sentinel.ErrInvalidState
// (conditional update matched no row).
type Store interface {
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	FindEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	FindEnrollmentForUpdate(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	FindEnrollmentByApplication(ctx context.Context, applicationID id.ApplicationID) (*models.Enrollment, error)
	FindEnrollmentByToken(ctx context.Context, token string) (*models.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *models.Enrollment) error

	// CreateFees inserts the fees that do not exist yet for their
	// (enrollment, rule) pair and reports how many were inserted.
	CreateFees(ctx context.Context, fees []*models.FeeInstance) (int, error)
	FindFee(ctx context.Context, feeID id.FeeID) (*models.FeeInstance, error)
	FindFeeForUpdate(ctx context.Context, feeID id.FeeID) (*models.FeeInstance, error)
	ListFees(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.FeeInstance, error)
	UpdateFee(ctx context.Context, fee *models.FeeInstance) error

	CreatePayment(ctx context.Context, p *models.Payment) error
	FindPayment(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	FindPaymentForUpdate(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	ListPaymentsByFee(ctx context.Context, feeID id.FeeID) ([]*models.Payment, error)
	ListPaymentsByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.Payment, error)
	// TransitionPayment persists p only if the stored status still equals
	// from; otherwise it returns sentinel.ErrInvalidState.
	TransitionPayment(ctx context.Context, p *models.Payment, from models.PaymentStatus) error

	CreateReceipt(ctx context.Context, r *models.Receipt) error
	FindReceiptByPayment(ctx context.Context, paymentID id.PaymentID) (*models.Receipt, error)
	FindReceiptByReference(ctx context.Context, reference string) (*models.Receipt, error)
	SetReceiptArtifact(ctx context.Context, receiptID id.ReceiptID, ref string) error

	CreateStudent(ctx context.Context, s *models.StudentProfile) error
	FindStudentByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.StudentProfile, error)
	UpdateStudentPassword(ctx context.Context, enrollmentID id.EnrollmentID, passwordHash string) error

	// NextSequence atomically increments and returns the counter for
	// (scope, year), starting at 1.
	NextSequence(ctx context.Context, scope string, year int) (int64, error)
}

// TxRunner provides the transactional boundary around store mutations. The
// ctx handed to fn carries the transaction so collaborators such as the
// audit outbox can join it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
