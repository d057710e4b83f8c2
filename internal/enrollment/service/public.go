package service

import (
	"context"
	"strings"

	catalogmodels "esfe/internal/catalog/models"
	"esfe/internal/enrollment/models"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/money"
	"esfe/pkg/secrets"
)

// GetPublicStatus returns the public view of an enrollment. Without an access
// code only the aggregate is shown; with the right code the per-fee ledger is
// included. A wrong code is refused rather than silently downgraded.
func (s *Service) GetPublicStatus(ctx context.Context, token, accessCode string) (*models.PublicStatus, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
	}

	load := func(ctx context.Context) (*models.StatusSnapshot, error) {
		return s.loadSnapshot(ctx, token)
	}
	var (
		snap *models.StatusSnapshot
		err  error
	)
	if s.cache != nil {
		snap, err = s.cache.Get(ctx, token, load)
	} else {
		snap, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	if accessCode = strings.TrimSpace(accessCode); accessCode == "" {
		out := snap.Summary()
		return &out, nil
	}
	if err := secrets.Verify(accessCode, snap.AccessCodeHash); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid access code")
	}
	out := snap.Status
	return &out, nil
}

func (s *Service) loadSnapshot(ctx context.Context, token string) (*models.StatusSnapshot, error) {
	e, err := s.store.FindEnrollmentByToken(ctx, token)
	if err != nil {
		return nil, storeErr(err, "enrollment")
	}
	fees, err := s.store.ListFees(ctx, e.ID)
	if err != nil {
		return nil, storeErr(err, "fee instances")
	}
	payments, err := s.store.ListPaymentsByEnrollment(ctx, e.ID)
	if err != nil {
		return nil, storeErr(err, "payments")
	}

	status := models.PublicStatus{
		Token:         e.PublicToken,
		CandidateName: e.CandidateName,
		AcademicYear:  catalogmodels.YearLabel(e.StartYear),
		Status:        e.Status,
		IsActive:      e.IsActive,
		Matricule:     e.Matricule,
		Detailed:      true,
	}
	if programme, err := s.catalog.GetProgramme(ctx, e.ProgrammeID); err == nil {
		status.Programme = programme.Name
	}

	byFee := groupByFee(payments)
	for _, fee := range fees {
		b := models.NewFeeBalance(fee, byFee[fee.ID])
		pf := models.PublicFee{
			Label:       fee.Label,
			Mandatory:   fee.Mandatory,
			AmountToPay: b.AmountToPay,
			TotalPaid:   b.TotalPaid,
			Remaining:   b.Remaining,
			IsSettled:   fee.IsSettled,
		}
		for _, p := range byFee[fee.ID] {
			pp := models.PublicPayment{Amount: p.Amount, Method: p.Method, Status: p.Status, PaidAt: p.PaidAt}
			if p.Status == models.PaymentValidated {
				if rec, err := s.store.FindReceiptByPayment(ctx, p.ID); err == nil {
					pp.ReceiptReference = rec.Reference
				}
			}
			pf.Payments = append(pf.Payments, pp)
		}
		status.Fees = append(status.Fees, pf)
		status.TotalDue = money.Sum(status.TotalDue, b.AmountToPay)
		status.TotalPaid = money.Sum(status.TotalPaid, b.TotalPaid)
		status.Remaining = money.Sum(status.Remaining, b.Remaining)
	}
	return &models.StatusSnapshot{Status: status, AccessCodeHash: e.AccessCodeHash}, nil
}

// GetReceipt looks a receipt up by its reference.
func (s *Service) GetReceipt(ctx context.Context, reference string) (*models.ReceiptView, error) {
	rec, err := s.store.FindReceiptByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, storeErr(err, "receipt")
	}
	p, err := s.store.FindPayment(ctx, rec.PaymentID)
	if err != nil {
		return nil, storeErr(err, "payment")
	}
	e, err := s.store.FindEnrollment(ctx, rec.EnrollmentID)
	if err != nil {
		return nil, storeErr(err, "enrollment")
	}
	fee, err := s.store.FindFee(ctx, p.FeeID)
	if err != nil {
		return nil, storeErr(err, "fee")
	}
	return &models.ReceiptView{
		Reference:       rec.Reference,
		IssuedAt:        rec.IssuedAt,
		CandidateName:   e.CandidateName,
		Matricule:       e.Matricule,
		FeeLabel:        fee.Label,
		Amount:          p.Amount,
		Method:          p.Method,
		PaidAt:          p.PaidAt,
		VerificationURL: s.publicURL(e.PublicToken),
		ArtifactRef:     rec.ArtifactRef,
	}, nil
}

// SubmitPayment is the student-facing payment request. The caller proves
// ownership of the enrollment with its public token and access code, and the
// fee must belong to that enrollment.
func (s *Service) SubmitPayment(ctx context.Context, token, accessCode string, req CreatePaymentRequest) (*models.Payment, error) {
	e, err := s.store.FindEnrollmentByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, storeErr(err, "enrollment")
	}
	if err := secrets.Verify(strings.TrimSpace(accessCode), e.AccessCodeHash); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid access code")
	}
	fee, err := s.store.FindFee(ctx, req.FeeID)
	if err != nil {
		return nil, storeErr(err, "fee")
	}
	if fee.EnrollmentID != e.ID {
		return nil, dErrors.New(dErrors.CodeNotFound, "fee not found")
	}
	return s.CreatePendingPayment(ctx, req)
}
