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
	"esfe/internal/notify"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/email"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
	"esfe/pkg/secrets"
)

// ActivationResult reports the outcome of an activation pass.
type ActivationResult struct {
	// Activated is true only for the call that flipped IsActive.
	Activated  bool
	Enrollment *models.Enrollment
	Student    *models.StudentProfile
	// Password is the cleartext of a freshly created student account. It is
	// only set when StudentCreated and is never persisted.
	Password       string `json:"-"`
	StudentCreated bool
}

// ActivateIfEligible opens access when every mandatory fee is settled. It is
// a no-op for active, cancelled, suspended or ineligible enrollments.
func (s *Service) ActivateIfEligible(ctx context.Context, enrollmentID id.EnrollmentID) (*ActivationResult, error) {
	res, err := s.activate(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if res.Activated {
		s.sendCredentials(ctx, res)
		s.invalidate(ctx, res.Enrollment)
	}
	return res, nil
}

func (s *Service) activate(ctx context.Context, enrollmentID id.EnrollmentID) (*ActivationResult, error) {
	start := time.Now()
	defer s.metrics.ObserveActivate(start)

	ctx, span := s.tracer.Start(ctx, "enrollment.Activate",
		trace.WithAttributes(attribute.String("enrollment_id", enrollmentID.String())))
	defer span.End()

	var res *ActivationResult
	err := s.retryOnConflict(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			e, err := store.FindEnrollmentForUpdate(ctx, enrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			res = &ActivationResult{Enrollment: e}
			if !e.CanActivate() {
				return nil
			}
			fees, err := store.ListFees(ctx, e.ID)
			if err != nil {
				return storeErr(err, "fee instances")
			}
			if !models.Eligible(fees) {
				return nil
			}
			res, err = s.applyActivation(ctx, store, e)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("activated", res.Activated))
	if res.Activated {
		s.afterActivation(ctx, res)
	}
	return res, nil
}

// ForceActivate is the staff override for an enrollment whose mandatory fees
// are settled but that was never activated. It fails loudly where
// ActivateIfEligible silently no-ops.
func (s *Service) ForceActivate(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*ActivationResult, error) {
	if staff.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}

	var res *ActivationResult
	err := s.retryOnConflict(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			e, err := store.FindEnrollmentForUpdate(ctx, enrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			switch {
			case e.Status == models.StatusCancelled:
				return dErrors.New(dErrors.CodeInvalidState, "enrollment is cancelled")
			case e.Status == models.StatusSuspended:
				return dErrors.New(dErrors.CodeInvalidState, "enrollment is suspended")
			case e.IsActive:
				res = &ActivationResult{Enrollment: e}
				return nil
			}
			fees, err := store.ListFees(ctx, e.ID)
			if err != nil {
				return storeErr(err, "fee instances")
			}
			if !models.HasMandatory(fees) {
				return dErrors.New(dErrors.CodeConfiguration, "no mandatory fee is configured for this enrollment")
			}
			if !models.Eligible(fees) {
				return dErrors.New(dErrors.CodeValidation, "mandatory fees are not settled")
			}
			res, err = s.applyActivation(ctx, store, e)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if res.Activated {
		s.afterActivation(ctx, res)
		s.sendCredentials(ctx, res)
		s.invalidate(ctx, res.Enrollment)
	}
	return res, nil
}

// applyActivation flips the enrollment, assigns the matricule on first
// activation and provisions the student account once. It must run under the
// enrollment lock.
func (s *Service) applyActivation(ctx context.Context, store Store, e *models.Enrollment) (*ActivationResult, error) {
	now := requestcontext.Now(ctx)
	res := &ActivationResult{Enrollment: e, Activated: true}

	matricule := e.Matricule
	if matricule == "" {
		seq, err := store.NextSequence(ctx, models.SequenceMatricule, e.StartYear)
		if err != nil {
			return nil, storeErr(err, "matricule sequence")
		}
		matricule = models.FormatMatricule(s.institution, e.StartYear, seq)
	}
	e.Activate(matricule, now)
	if err := store.UpdateEnrollment(ctx, e); err != nil {
		return nil, storeErr(err, "enrollment")
	}

	student, err := store.FindStudentByEnrollment(ctx, e.ID)
	switch {
	case err == nil:
		res.Student = student
	case errors.Is(err, sentinel.ErrNotFound):
		password, err := secrets.Password(studentPasswordLen)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate student password")
		}
		hash, err := secrets.Hash(password)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash student password")
		}
		student = &models.StudentProfile{
			ID:           id.StudentID(uuid.New()),
			EnrollmentID: e.ID,
			Matricule:    e.Matricule,
			Username:     strings.ToLower(e.Matricule),
			PasswordHash: hash,
			ActivatedAt:  now,
		}
		if err := store.CreateStudent(ctx, student); err != nil {
			return nil, storeErr(err, "student profile")
		}
		res.Student = student
		res.Password = password
		res.StudentCreated = true
	default:
		return nil, storeErr(err, "student profile")
	}

	s.emit(ctx, audit.EventEnrollmentActivated, e.ID, e.Matricule, "", "")
	if res.StudentCreated {
		s.emit(ctx, audit.EventStudentProvisioned, e.ID, student.Username, "", "")
	}
	return res, nil
}

func (s *Service) afterActivation(ctx context.Context, res *ActivationResult) {
	s.metrics.IncActivation()
	s.logAudit(ctx, audit.EventEnrollmentActivated,
		"enrollment_id", res.Enrollment.ID.String(),
		"matricule", res.Enrollment.Matricule,
		"student_created", res.StudentCreated,
	)
}

// sendCredentials hands the one-time password to the notifier. Accounts that
// already existed get nothing: their password was delivered before.
func (s *Service) sendCredentials(ctx context.Context, res *ActivationResult) {
	if res == nil || !res.StudentCreated {
		return
	}
	_ = s.deliverCredentials(ctx, res.Enrollment, res.Student, res.Password)
}

func (s *Service) deliverCredentials(ctx context.Context, e *models.Enrollment, student *models.StudentProfile, password string) error {
	if s.notifier == nil {
		return nil
	}
	msg := notify.CredentialsMessage{
		To:          e.CandidateEmail,
		StudentName: email.GreetingName(e.CandidateName, e.CandidateEmail),
		Matricule:   e.Matricule,
		Username:    student.Username,
		Password:    password,
		LoginURL:    s.studentLoginURL,
		PublicURL:   s.publicURL(e.PublicToken),
	}
	if err := s.notifier.SendCredentials(ctx, msg); err != nil {
		return s.dependencyFailure(ctx, "notifier", audit.EventNotificationFailed, e.ID, "credentials", err)
	}
	return nil
}

// ReissueCredentials replaces the student password of an active enrollment
// and sends the new one. The old password stops working once the
// transaction commits, even when delivery then fails.
func (s *Service) ReissueCredentials(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*ActivationResult, error) {
	if staff.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}

	var res *ActivationResult
	err := s.retryOnConflict(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			e, err := store.FindEnrollmentForUpdate(ctx, enrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			if !e.IsActive {
				return dErrors.New(dErrors.CodeInvalidState, "enrollment is not active")
			}
			student, err := store.FindStudentByEnrollment(ctx, e.ID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInvalidState, "enrollment has no student account")
			}
			if err != nil {
				return storeErr(err, "student profile")
			}
			password, err := secrets.Password(studentPasswordLen)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate student password")
			}
			hash, err := secrets.Hash(password)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash student password")
			}
			if err := store.UpdateStudentPassword(ctx, e.ID, hash); err != nil {
				return storeErr(err, "student profile")
			}
			student.PasswordHash = hash
			s.emit(ctx, audit.EventCredentialsReissued, e.ID, student.Username, "", "")
			res = &ActivationResult{Enrollment: e, Student: student, Password: password}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventCredentialsReissued,
		"enrollment_id", res.Enrollment.ID.String(),
		"username", res.Student.Username,
	)
	if err := s.deliverCredentials(ctx, res.Enrollment, res.Student, res.Password); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) sendConfirmation(ctx context.Context, e *models.Enrollment, fee *models.FeeInstance, p *models.Payment, remaining decimal.Decimal, rec *models.Receipt) {
	if s.notifier == nil || e == nil || fee == nil || p == nil {
		return
	}
	msg := notify.ConfirmationMessage{
		To:          e.CandidateEmail,
		StudentName: email.GreetingName(e.CandidateName, e.CandidateEmail),
		FeeLabel:    fee.Label,
		Amount:      p.Amount,
		Remaining:   remaining,
		PublicURL:   s.publicURL(e.PublicToken),
	}
	if rec != nil {
		msg.ReceiptReference = rec.Reference
	}
	if err := s.notifier.SendPaymentConfirmation(ctx, msg); err != nil {
		_ = s.dependencyFailure(ctx, "notifier", audit.EventNotificationFailed, e.ID, p.ID.String(), err)
	}
}
