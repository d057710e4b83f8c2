package service

import (
	"context"

	"esfe/internal/enrollment/models"
	id "esfe/pkg/domain"
	"esfe/pkg/platform/audit"
	"esfe/pkg/requestcontext"
)

// RecalculateFeeStatus re-derives the settlement flag of one fee from its
// validated payments. A settled fee stays settled. When the fee settles here
// the enrollment gets an activation pass.
func (s *Service) RecalculateFeeStatus(ctx context.Context, feeID id.FeeID) (bool, error) {
	fee, err := s.store.FindFee(ctx, feeID)
	if err != nil {
		return false, storeErr(err, "fee")
	}

	var settled, changed bool
	err = s.retryOnConflict(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			if _, err := store.FindEnrollmentForUpdate(ctx, fee.EnrollmentID); err != nil {
				return storeErr(err, "enrollment")
			}
			locked, err := store.FindFeeForUpdate(ctx, feeID)
			if err != nil {
				return storeErr(err, "fee")
			}
			payments, err := store.ListPaymentsByFee(ctx, feeID)
			if err != nil {
				return storeErr(err, "payments")
			}
			settled, changed = models.Ratchet(locked, payments, requestcontext.Now(ctx))
			if !changed {
				return nil
			}
			if err := store.UpdateFee(ctx, locked); err != nil {
				return storeErr(err, "fee")
			}
			s.emit(ctx, audit.EventFeeSettled, locked.EnrollmentID, locked.ID.String(), models.TotalPaid(payments).String(), "")
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.metrics.IncFeeSettled()
		if _, err := s.ActivateIfEligible(ctx, fee.EnrollmentID); err != nil {
			s.logger.ErrorContext(ctx, "activation after recalculation failed",
				"enrollment_id", fee.EnrollmentID.String(),
				"error", err,
			)
		}
	}
	return settled, nil
}

// IsEligibleForActivation is true when the enrollment has at least one
// mandatory fee and all of them are settled.
func (s *Service) IsEligibleForActivation(ctx context.Context, enrollmentID id.EnrollmentID) (bool, error) {
	if _, err := s.store.FindEnrollment(ctx, enrollmentID); err != nil {
		return false, storeErr(err, "enrollment")
	}
	fees, err := s.store.ListFees(ctx, enrollmentID)
	if err != nil {
		return false, storeErr(err, "fee instances")
	}
	return models.Eligible(fees), nil
}
