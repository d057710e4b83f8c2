package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"esfe/internal/enrollment/models"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/money"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
)

// MarkValidated records that staff reviewed the dossier. It does not touch
// the financial axis.
func (s *Service) MarkValidated(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*models.Enrollment, error) {
	if staff.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}
	return s.updateStatus(ctx, enrollmentID, audit.EventEnrollmentValidated, "", func(e *models.Enrollment) error {
		return e.MarkValidated(staff, requestcontext.Now(ctx))
	})
}

// Suspend freezes the enrollment: access is closed and no payment can be
// created or validated until it is reinstated.
func (s *Service) Suspend(ctx context.Context, enrollmentID id.EnrollmentID, reason string, staff id.StaffID) (*models.Enrollment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a reason is required")
	}
	if staff.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}
	return s.updateStatus(ctx, enrollmentID, audit.EventEnrollmentSuspended, reason, func(e *models.Enrollment) error {
		return e.Suspend(reason, requestcontext.Now(ctx))
	})
}

// Cancel is terminal.
func (s *Service) Cancel(ctx context.Context, enrollmentID id.EnrollmentID, reason string, staff id.StaffID) (*models.Enrollment, error) {
	reason = strings.TrimSpace(reason)
	if staff.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}
	return s.updateStatus(ctx, enrollmentID, audit.EventEnrollmentCancelled, reason, func(e *models.Enrollment) error {
		return e.Cancel(reason, requestcontext.Now(ctx))
	})
}

// Reinstate lifts a suspension and runs an activation pass, which reopens
// access when the mandatory fees are still settled.
func (s *Service) Reinstate(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*models.Enrollment, error) {
	if staff.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}
	e, err := s.updateStatus(ctx, enrollmentID, audit.EventEnrollmentReinstated, "", func(e *models.Enrollment) error {
		return e.Reinstate(requestcontext.Now(ctx))
	})
	if err != nil {
		return nil, err
	}
	res, err := s.ActivateIfEligible(ctx, enrollmentID)
	if err != nil {
		s.logger.ErrorContext(ctx, "activation after reinstatement failed",
			"enrollment_id", enrollmentID.String(),
			"error", err,
		)
		return e, nil
	}
	return res.Enrollment, nil
}

func (s *Service) updateStatus(ctx context.Context, enrollmentID id.EnrollmentID, event audit.AuditEvent, reason string, mutate func(*models.Enrollment) error) (*models.Enrollment, error) {
	var updated *models.Enrollment
	err := s.retryOnConflict(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			e, err := store.FindEnrollmentForUpdate(ctx, enrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			if err := mutate(e); err != nil {
				return err
			}
			if err := store.UpdateEnrollment(ctx, e); err != nil {
				return storeErr(err, "enrollment")
			}
			s.emit(ctx, event, e.ID, string(e.Status), "", reason)
			updated = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, event,
		"enrollment_id", enrollmentID.String(),
		"status", string(updated.Status),
		"is_active", updated.IsActive,
		"reason", reason,
	)
	s.invalidate(ctx, updated)
	return updated, nil
}

// OverrideFeeAmount corrects the amount due of one fee instance. A nil amount
// clears the override. The override may not go below what was already
// validated, and a settled fee stays settled.
func (s *Service) OverrideFeeAmount(ctx context.Context, feeID id.FeeID, amount *decimal.Decimal, staff id.StaffID) (*models.FeeInstance, error) {
	if staff.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}
	if amount != nil {
		if err := money.CheckNonNegative(*amount); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid override amount")
		}
	}
	fee, err := s.store.FindFee(ctx, feeID)
	if err != nil {
		return nil, storeErr(err, "fee")
	}

	var (
		updated *models.FeeInstance
		flipped bool
	)
	err = s.retryOnConflict(ctx, func() error {
		flipped = false
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			e, err := store.FindEnrollmentForUpdate(ctx, fee.EnrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			if e.Status == models.StatusCancelled {
				return dErrors.New(dErrors.CodeValidation, "enrollment is cancelled")
			}
			locked, err := store.FindFeeForUpdate(ctx, feeID)
			if err != nil {
				return storeErr(err, "fee")
			}
			payments, err := store.ListPaymentsByFee(ctx, feeID)
			if err != nil {
				return storeErr(err, "payments")
			}
			if amount != nil && amount.LessThan(models.TotalPaid(payments)) {
				return dErrors.New(dErrors.CodeValidation, "override is below the amount already paid")
			}
			locked.AmountOverride = amount
			_, flipped = models.Ratchet(locked, payments, requestcontext.Now(ctx))
			if err := store.UpdateFee(ctx, locked); err != nil {
				return storeErr(err, "fee")
			}
			s.emit(ctx, audit.EventFeeOverridden, e.ID, locked.ID.String(), locked.AmountToPay().String(), "")
			if flipped {
				s.emit(ctx, audit.EventFeeSettled, e.ID, locked.ID.String(), models.TotalPaid(payments).String(), "")
			}
			updated = locked
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventFeeOverridden,
		"enrollment_id", updated.EnrollmentID.String(),
		"fee_id", feeID.String(),
		"amount_to_pay", updated.AmountToPay().String(),
	)
	if flipped {
		s.metrics.IncFeeSettled()
		if _, err := s.ActivateIfEligible(ctx, updated.EnrollmentID); err != nil {
			s.logger.ErrorContext(ctx, "activation after override failed",
				"enrollment_id", updated.EnrollmentID.String(),
				"error", err,
			)
		}
	}
	return updated, nil
}

// GetLedger assembles the staff view of one enrollment.
func (s *Service) GetLedger(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Ledger, error) {
	e, err := s.store.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, storeErr(err, "enrollment")
	}
	fees, err := s.store.ListFees(ctx, enrollmentID)
	if err != nil {
		return nil, storeErr(err, "fee instances")
	}
	payments, err := s.store.ListPaymentsByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, storeErr(err, "payments")
	}

	ledger := &models.Ledger{
		Enrollment: e,
		Fees:       make([]models.FeeBalance, 0, len(fees)),
		Payments:   payments,
		Eligible:   models.Eligible(fees),
	}
	byFee := groupByFee(payments)
	for _, fee := range fees {
		ledger.Fees = append(ledger.Fees, models.NewFeeBalance(fee, byFee[fee.ID]))
	}
	student, err := s.store.FindStudentByEnrollment(ctx, enrollmentID)
	switch {
	case err == nil:
		ledger.Student = student
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, storeErr(err, "student profile")
	}
	return ledger, nil
}

func groupByFee(payments []*models.Payment) map[id.FeeID][]*models.Payment {
	out := make(map[id.FeeID][]*models.Payment)
	for _, p := range payments {
		out[p.FeeID] = append(out[p.FeeID], p)
	}
	return out
}
