package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	catalogmodels "esfe/internal/catalog/models"
	"esfe/internal/enrollment/models"
	"esfe/internal/receipt"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
)

// IssueReceipt allocates the receipt of a validated payment. A payment has at
// most one receipt; asking again returns it. The artifact is rendered after
// commit and re-rendered when missing, so a failed render can be retried by
// calling IssueReceipt again. A render failure is returned alongside the
// receipt.
func (s *Service) IssueReceipt(ctx context.Context, paymentID id.PaymentID) (*models.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.IssueReceipt",
		trace.WithAttributes(attribute.String("payment_id", paymentID.String())))
	defer span.End()

	var (
		rec        *models.Receipt
		enrollment *models.Enrollment
		created    bool
	)
	err := s.retryOnConflict(ctx, func() error {
		created = false
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			p, err := store.FindPayment(ctx, paymentID)
			if err != nil {
				return storeErr(err, "payment")
			}
			e, err := store.FindEnrollmentForUpdate(ctx, p.EnrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			enrollment = e
			if p.Status != models.PaymentValidated {
				return dErrors.New(dErrors.CodeInvalidState, "receipts are only issued for validated payments")
			}
			existing, err := store.FindReceiptByPayment(ctx, paymentID)
			if err == nil {
				rec = existing
				return nil
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return storeErr(err, "receipt")
			}

			now := requestcontext.Now(ctx)
			year := now.Year()
			seq, err := store.NextSequence(ctx, models.SequenceReceipt, year)
			if err != nil {
				return storeErr(err, "receipt sequence")
			}
			rec = &models.Receipt{
				ID:           id.ReceiptID(uuid.New()),
				PaymentID:    p.ID,
				EnrollmentID: p.EnrollmentID,
				Reference:    models.FormatReceiptReference(s.institution, year, seq),
				Year:         year,
				Sequence:     seq,
				IssuedAt:     now,
			}
			if err := store.CreateReceipt(ctx, rec); err != nil {
				return storeErr(err, "receipt")
			}
			s.emit(ctx, audit.EventReceiptIssued, p.EnrollmentID, rec.Reference, p.Amount.String(), "")
			created = true
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if created {
		s.metrics.IncReceiptIssued()
		s.logAudit(ctx, audit.EventReceiptIssued,
			"enrollment_id", rec.EnrollmentID.String(),
			"payment_id", paymentID.String(),
			"reference", rec.Reference,
		)
		s.invalidate(ctx, enrollment)
	}
	if err := s.ensureArtifact(ctx, rec); err != nil {
		span.RecordError(err)
		return rec, err
	}
	return rec, nil
}

func (s *Service) ensureArtifact(ctx context.Context, rec *models.Receipt) error {
	if s.renderer == nil || s.artifacts == nil {
		return nil
	}
	if rec.ArtifactRef != "" {
		ok, err := s.artifacts.Exists(ctx, rec.ArtifactRef)
		if err == nil && ok {
			return nil
		}
	}

	doc, err := s.receiptDocument(ctx, rec)
	if err != nil {
		return s.dependencyFailure(ctx, "renderer", audit.EventRenderFailed, rec.EnrollmentID, rec.Reference, err)
	}
	blob, err := s.renderer.Render(ctx, *doc)
	if err != nil {
		return s.dependencyFailure(ctx, "renderer", audit.EventRenderFailed, rec.EnrollmentID, rec.Reference, err)
	}
	ref, err := s.artifacts.Save(ctx, rec.Reference, blob)
	if err != nil {
		return s.dependencyFailure(ctx, "artifact store", audit.EventRenderFailed, rec.EnrollmentID, rec.Reference, err)
	}
	if err := s.store.SetReceiptArtifact(ctx, rec.ID, ref); err != nil {
		return s.dependencyFailure(ctx, "artifact store", audit.EventRenderFailed, rec.EnrollmentID, rec.Reference, err)
	}
	rec.ArtifactRef = ref
	return nil
}

func (s *Service) receiptDocument(ctx context.Context, rec *models.Receipt) (*receipt.Document, error) {
	p, err := s.store.FindPayment(ctx, rec.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("loading payment: %w", err)
	}
	e, err := s.store.FindEnrollment(ctx, rec.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("loading enrollment: %w", err)
	}
	fee, err := s.store.FindFee(ctx, p.FeeID)
	if err != nil {
		return nil, fmt.Errorf("loading fee: %w", err)
	}
	payments, err := s.store.ListPaymentsByFee(ctx, fee.ID)
	if err != nil {
		return nil, fmt.Errorf("loading payments: %w", err)
	}

	doc := &receipt.Document{
		Institution:      s.institution,
		Reference:        rec.Reference,
		IssuedAt:         rec.IssuedAt,
		CandidateName:    e.CandidateName,
		Matricule:        e.Matricule,
		AcademicYear:     catalogmodels.YearLabel(e.StartYear),
		FeeLabel:         fee.Label,
		Amount:           p.Amount,
		Method:           string(p.Method),
		PaymentReference: p.Reference,
		Remaining:        models.Remaining(fee, payments),
		VerificationURL:  s.publicURL(e.PublicToken),
	}
	if programme, err := s.catalog.GetProgramme(ctx, e.ProgrammeID); err == nil {
		doc.Programme = programme.Name
	}
	return doc, nil
}
