package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"esfe/internal/enrollment/models"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/money"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
)

const errAmountExceedsRemaining = "amount exceeds remaining balance"

type CreatePaymentRequest struct {
	FeeID     id.FeeID
	Amount    decimal.Decimal
	Method    models.PaymentMethod
	Reference string
	// CashCode is the cash desk verification code, required for cash
	// payments when a cash desk is configured.
	CashCode string
}

// ValidationResult describes what ValidatePayment did.
type ValidationResult struct {
	Payment *models.Payment
	Fee     *models.FeeInstance
	// AlreadyProcessed is set when the payment was not pending; nothing was
	// changed.
	AlreadyProcessed bool
	FeeSettled       bool
	Remaining        decimal.Decimal
	Activation       *ActivationResult
	Receipt          *models.Receipt
}

// CreatePendingPayment records a payment request. The amount is checked
// against the remaining balance here too, although ValidatePayment holds the
// authoritative check.
func (s *Service) CreatePendingPayment(ctx context.Context, req CreatePaymentRequest) (*models.Payment, error) {
	if err := money.CheckPositive(req.Amount); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid payment amount")
	}
	if !req.Method.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid payment method: "+string(req.Method))
	}
	fee, err := s.store.FindFee(ctx, req.FeeID)
	if err != nil {
		return nil, storeErr(err, "fee")
	}

	var agentCode string
	if req.Method == models.MethodCash && s.cash != nil {
		if strings.TrimSpace(req.CashCode) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "cash payments require a cash desk code")
		}
		// a code is single use: refuse doomed payments before spending it
		if err := s.precheckPayment(ctx, fee, req.Amount); err != nil {
			return nil, err
		}
		agentCode, err = s.cash.Consume(ctx, fee.EnrollmentID, strings.TrimSpace(req.CashCode))
		if err != nil {
			return nil, err
		}
	}

	var (
		payment    *models.Payment
		enrollment *models.Enrollment
	)
	err = s.retryOnConflict(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			e, err := store.FindEnrollmentForUpdate(ctx, fee.EnrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			if err := e.CanAcceptPayments(); err != nil {
				return err
			}
			payments, err := store.ListPaymentsByFee(ctx, fee.ID)
			if err != nil {
				return storeErr(err, "payments")
			}
			if req.Amount.GreaterThan(models.Remaining(fee, payments)) {
				s.metrics.IncOvershoot()
				return dErrors.New(dErrors.CodeValidation, errAmountExceedsRemaining)
			}

			now := requestcontext.Now(ctx)
			payment = &models.Payment{
				ID:           id.PaymentID(uuid.New()),
				FeeID:        fee.ID,
				EnrollmentID: e.ID,
				Amount:       req.Amount,
				Method:       req.Method,
				Status:       models.PaymentPending,
				Reference:    strings.TrimSpace(req.Reference),
				AgentCode:    agentCode,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := store.CreatePayment(ctx, payment); err != nil {
				return storeErr(err, "payment")
			}
			s.emit(ctx, audit.EventPaymentCreated, e.ID, payment.ID.String(), payment.Amount.String(), string(payment.Method))
			enrollment = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPaymentCreated(string(payment.Method))
	s.invalidate(ctx, enrollment)
	return payment, nil
}

// precheckPayment runs the enrollment and balance checks of
// CreatePendingPayment without locks. The transaction repeats them.
func (s *Service) precheckPayment(ctx context.Context, fee *models.FeeInstance, amount decimal.Decimal) error {
	e, err := s.store.FindEnrollment(ctx, fee.EnrollmentID)
	if err != nil {
		return storeErr(err, "enrollment")
	}
	if err := e.CanAcceptPayments(); err != nil {
		return err
	}
	payments, err := s.store.ListPaymentsByFee(ctx, fee.ID)
	if err != nil {
		return storeErr(err, "payments")
	}
	if amount.GreaterThan(models.Remaining(fee, payments)) {
		s.metrics.IncOvershoot()
		return dErrors.New(dErrors.CodeValidation, errAmountExceedsRemaining)
	}
	return nil
}

// ValidatePayment moves a pending payment to validated, then ratchets its
// fee, runs an activation pass, issues the receipt and notifies the student.
//
// The balance check, the status transition and the settlement update share
// one transaction under the enrollment lock. Everything after commit is best
// effort: failures are logged and reported as dependency failures but never
// undo the validation.
func (s *Service) ValidatePayment(ctx context.Context, paymentID id.PaymentID, validator id.StaffID) (*ValidationResult, error) {
	start := time.Now()
	defer s.metrics.ObserveValidate(start)

	ctx, span := s.tracer.Start(ctx, "enrollment.ValidatePayment",
		trace.WithAttributes(attribute.String("payment_id", paymentID.String())))
	defer span.End()

	if validator.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "validator is required")
	}

	var (
		res        ValidationResult
		enrollment *models.Enrollment
		payments   []*models.Payment
		flipped    bool
	)
	err := s.retryOnConflict(ctx, func() error {
		res = ValidationResult{}
		flipped = false
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			p, err := store.FindPayment(ctx, paymentID)
			if err != nil {
				return storeErr(err, "payment")
			}
			e, err := store.FindEnrollmentForUpdate(ctx, p.EnrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			p, err = store.FindPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return storeErr(err, "payment")
			}
			if !p.IsPending() {
				res.Payment = p
				res.AlreadyProcessed = true
				return nil
			}
			if err := e.CanAcceptPayments(); err != nil {
				return err
			}

			fee, err := store.FindFeeForUpdate(ctx, p.FeeID)
			if err != nil {
				return storeErr(err, "fee")
			}
			payments, err = store.ListPaymentsByFee(ctx, fee.ID)
			if err != nil {
				return storeErr(err, "payments")
			}
			if p.Amount.GreaterThan(models.Remaining(fee, payments)) {
				s.metrics.IncOvershoot()
				return dErrors.New(dErrors.CodeValidation, errAmountExceedsRemaining)
			}

			now := requestcontext.Now(ctx)
			if err := p.Validate(validator, now); err != nil {
				return err
			}
			if err := store.TransitionPayment(ctx, p, models.PaymentPending); err != nil {
				if errors.Is(err, sentinel.ErrInvalidState) {
					res.Payment = p
					res.AlreadyProcessed = true
					return nil
				}
				return storeErr(err, "payment")
			}
			payments = replacePayment(payments, p)

			settled, changed := models.Ratchet(fee, payments, now)
			if changed {
				if err := store.UpdateFee(ctx, fee); err != nil {
					return storeErr(err, "fee")
				}
			}

			s.emit(ctx, audit.EventPaymentValidated, e.ID, p.ID.String(), p.Amount.String(), string(p.Method))
			if changed {
				s.emit(ctx, audit.EventFeeSettled, e.ID, fee.ID.String(), models.TotalPaid(payments).String(), "")
			}
			res.Payment = p
			res.Fee = fee
			res.FeeSettled = settled
			flipped = changed
			res.Remaining = models.Remaining(fee, payments)
			enrollment = e
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res.AlreadyProcessed {
		s.logger.InfoContext(ctx, "payment already processed",
			"payment_id", paymentID.String(),
			"status", string(res.Payment.Status),
			"request_id", requestcontext.RequestID(ctx),
		)
		return &res, nil
	}

	s.metrics.IncPaymentValidated(string(res.Payment.Method))
	if flipped {
		s.metrics.IncFeeSettled()
	}
	s.logAudit(ctx, audit.EventPaymentValidated,
		"enrollment_id", enrollment.ID.String(),
		"payment_id", paymentID.String(),
		"amount", res.Payment.Amount.String(),
		"fee_settled", res.FeeSettled,
	)

	// Any inactive enrollment gets a pass, not only when this fee flipped,
	// so an earlier failed activation is retried here.
	if !enrollment.IsActive {
		activation, err := s.activate(ctx, enrollment.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "activation failed after payment validation",
				"enrollment_id", enrollment.ID.String(),
				"payment_id", paymentID.String(),
				"error", err,
			)
		} else {
			res.Activation = activation
			if activation.Enrollment != nil {
				enrollment = activation.Enrollment
			}
		}
	}

	rec, err := s.IssueReceipt(ctx, paymentID)
	if err != nil {
		s.logger.WarnContext(ctx, "receipt not fully issued",
			"payment_id", paymentID.String(),
			"error", err,
		)
	}
	res.Receipt = rec

	if res.Activation != nil && res.Activation.StudentCreated {
		s.sendCredentials(ctx, res.Activation)
	} else {
		s.sendConfirmation(ctx, enrollment, res.Fee, res.Payment, res.Remaining, rec)
	}
	s.invalidate(ctx, enrollment)
	return &res, nil
}

// RejectPayment moves a pending payment to rejected. Rejecting an already
// rejected payment is a no-op; a validated payment cannot be rejected.
func (s *Service) RejectPayment(ctx context.Context, paymentID id.PaymentID, validator id.StaffID, reason string) (*models.Payment, error) {
	if validator.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "validator is required")
	}
	reason = strings.TrimSpace(reason)

	var (
		payment    *models.Payment
		enrollment *models.Enrollment
		changed    bool
	)
	err := s.retryOnConflict(ctx, func() error {
		changed = false
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			p, err := store.FindPayment(ctx, paymentID)
			if err != nil {
				return storeErr(err, "payment")
			}
			e, err := store.FindEnrollmentForUpdate(ctx, p.EnrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			p, err = store.FindPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return storeErr(err, "payment")
			}
			payment, enrollment = p, e
			switch p.Status {
			case models.PaymentRejected:
				return nil
			case models.PaymentValidated:
				return dErrors.New(dErrors.CodeInvalidState, "validated payments cannot be rejected")
			}
			if err := p.Reject(validator, reason, requestcontext.Now(ctx)); err != nil {
				return err
			}
			if err := store.TransitionPayment(ctx, p, models.PaymentPending); err != nil {
				return storeErr(err, "payment")
			}
			s.emit(ctx, audit.EventPaymentRejected, e.ID, p.ID.String(), p.Amount.String(), reason)
			changed = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.IncPaymentRejected()
		s.logAudit(ctx, audit.EventPaymentRejected,
			"enrollment_id", enrollment.ID.String(),
			"payment_id", paymentID.String(),
			"reason", reason,
		)
		s.invalidate(ctx, enrollment)
	}
	return payment, nil
}

func replacePayment(payments []*models.Payment, p *models.Payment) []*models.Payment {
	out := make([]*models.Payment, 0, len(payments))
	for _, existing := range payments {
		if existing.ID == p.ID {
			continue
		}
		out = append(out, existing)
	}
	return append(out, p)
}
