package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	catalogmodels "esfe/internal/catalog/models"
	"esfe/internal/enrollment/models"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/email"
	"esfe/pkg/money"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
	"esfe/pkg/secrets"
)

const (
	publicTokenBytes = 18
	accessCodeLength = 8
)

type AcceptRequest struct {
	ApplicationID  id.ApplicationID
	ProgrammeID    id.ProgrammeID
	CandidateName  string
	CandidateEmail string
	Notes          string
}

type AcceptResult struct {
	Enrollment *models.Enrollment
	Fees       []*models.FeeInstance
	// AccessCode is only set when this call created the enrollment.
	AccessCode string
	Created    bool
}

// Accept turns an accepted application into an enrollment with its frozen fee
// schedule. Accepting the same application again returns the existing
// enrollment.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (*AcceptResult, error) {
	if req.ApplicationID.IsNil() || req.ProgrammeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "application and programme are required")
	}
	name := strings.TrimSpace(req.CandidateName)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "candidate name is required")
	}
	address, err := email.Normalize(req.CandidateEmail)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "candidate email is invalid")
	}

	if existing, err := s.store.FindEnrollmentByApplication(ctx, req.ApplicationID); err == nil {
		return s.existingAcceptance(ctx, existing)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, storeErr(err, "enrollment")
	}

	if _, err := s.catalog.GetProgramme(ctx, req.ProgrammeID); err != nil {
		return nil, err
	}
	year, err := s.catalog.ActiveYear(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.catalog.ListActiveFeeRules(ctx, req.ProgrammeID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, dErrors.New(dErrors.CodeConfiguration, "programme has no active fee rules")
	}

	token, err := secrets.Token(publicTokenBytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate public token")
	}
	accessCode, err := secrets.Password(accessCodeLength)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access code")
	}
	accessHash, err := secrets.Hash(accessCode)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash access code")
	}

	result := &AcceptResult{}
	err = s.retryOnConflict(ctx, func() error {
		*result = AcceptResult{}
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			existing, err := store.FindEnrollmentByApplication(ctx, req.ApplicationID)
			if err == nil {
				result.Enrollment = existing
				return nil
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return storeErr(err, "enrollment")
			}

			now := requestcontext.Now(ctx)
			e := &models.Enrollment{
				ID:             id.EnrollmentID(uuid.New()),
				ApplicationID:  req.ApplicationID,
				ProgrammeID:    req.ProgrammeID,
				AcademicYearID: year.ID,
				StartYear:      year.StartYear,
				CandidateName:  name,
				CandidateEmail: address,
				Status:         models.StatusPending,
				PublicToken:    s.institution + "-INS-" + token,
				AccessCodeHash: accessHash,
				Notes:          strings.TrimSpace(req.Notes),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := store.CreateEnrollment(ctx, e); err != nil {
				return storeErr(err, "enrollment")
			}
			if _, err := store.CreateFees(ctx, buildFees(e.ID, rules, now)); err != nil {
				return storeErr(err, "fee instances")
			}
			fees, err := store.ListFees(ctx, e.ID)
			if err != nil {
				return storeErr(err, "fee instances")
			}

			s.emit(ctx, audit.EventEnrollmentCreated, e.ID, req.ApplicationID.String(), "", "")
			s.emit(ctx, audit.EventFeesInstantiated, e.ID, e.ID.String(), money.Sum(amounts(fees)...).String(), "")
			result.Enrollment = e
			result.Fees = fees
			result.Created = true
			result.AccessCode = accessCode
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if !result.Created {
		return s.existingAcceptance(ctx, result.Enrollment)
	}

	s.logAudit(ctx, audit.EventEnrollmentCreated,
		"enrollment_id", result.Enrollment.ID.String(),
		"application_id", req.ApplicationID.String(),
		"fees", len(result.Fees),
	)
	return result, nil
}

func (s *Service) existingAcceptance(ctx context.Context, e *models.Enrollment) (*AcceptResult, error) {
	fees, err := s.store.ListFees(ctx, e.ID)
	if err != nil {
		return nil, storeErr(err, "fee instances")
	}
	return &AcceptResult{Enrollment: e, Fees: fees}, nil
}

// InstantiateFees creates one fee instance per active rule of the
// enrollment's programme. Pairs that already exist are left untouched, so
// calling it again only picks up rules activated since.
func (s *Service) InstantiateFees(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.FeeInstance, error) {
	e, err := s.store.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, storeErr(err, "enrollment")
	}
	rules, err := s.catalog.ListActiveFeeRules(ctx, e.ProgrammeID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, dErrors.New(dErrors.CodeConfiguration, "programme has no active fee rules")
	}

	var fees []*models.FeeInstance
	err = s.retryOnConflict(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
			locked, err := store.FindEnrollmentForUpdate(ctx, enrollmentID)
			if err != nil {
				return storeErr(err, "enrollment")
			}
			if locked.Status == models.StatusCancelled {
				return dErrors.New(dErrors.CodeValidation, "enrollment is cancelled")
			}
			n, err := store.CreateFees(ctx, buildFees(locked.ID, rules, requestcontext.Now(ctx)))
			if err != nil {
				return storeErr(err, "fee instances")
			}
			fees, err = store.ListFees(ctx, locked.ID)
			if err != nil {
				return storeErr(err, "fee instances")
			}
			if n > 0 {
				s.emit(ctx, audit.EventFeesInstantiated, locked.ID, locked.ID.String(), "", "")
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return fees, nil
}

func buildFees(enrollmentID id.EnrollmentID, rules []*catalogmodels.FeeRule, now time.Time) []*models.FeeInstance {
	fees := make([]*models.FeeInstance, 0, len(rules))
	for _, rule := range rules {
		fees = append(fees, &models.FeeInstance{
			ID:             id.FeeID(uuid.New()),
			EnrollmentID:   enrollmentID,
			RuleID:         rule.ID,
			Label:          rule.Label,
			Type:           string(rule.Type),
			Order:          rule.Order,
			Mandatory:      rule.Mandatory,
			AmountExpected: rule.Amount,
			CreatedAt:      now,
		})
	}
	return fees
}

func amounts(fees []*models.FeeInstance) []decimal.Decimal {
	out := make([]decimal.Decimal, len(fees))
	for i, f := range fees {
		out[i] = f.AmountToPay()
	}
	return out
}
