// Package service manages the fee catalog and academic years. The enrollment
// pipeline only reads from it.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"esfe/internal/catalog/models"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/money"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
)

type Store interface {
	CreateProgramme(ctx context.Context, p *models.Programme) error
	FindProgramme(ctx context.Context, programmeID id.ProgrammeID) (*models.Programme, error)
	CreateRule(ctx context.Context, rule *models.FeeRule) error
	UpdateRule(ctx context.Context, rule *models.FeeRule) error
	FindRule(ctx context.Context, ruleID id.FeeRuleID) (*models.FeeRule, error)
	ListRules(ctx context.Context, programmeID id.ProgrammeID, activeOnly bool) ([]*models.FeeRule, error)
	CreateYear(ctx context.Context, year *models.AcademicYear) error
	FindYear(ctx context.Context, yearID id.AcademicYearID) (*models.AcademicYear, error)
	ActiveYear(ctx context.Context) (*models.AcademicYear, error)
	ActivateYear(ctx context.Context, yearID id.AcademicYearID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRuleRequest struct {
	ProgrammeID id.ProgrammeID
	Label       string
	Type        models.FeeType
	Amount      decimal.Decimal
	Order       int
	Mandatory   bool
}

func (s *Service) CreateProgramme(ctx context.Context, code, name string) (*models.Programme, error) {
	p, err := models.NewProgramme(id.ProgrammeID(uuid.New()), code, name, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if err := s.store.CreateProgramme(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "programme code already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create programme")
	}
	return p, nil
}

func (s *Service) GetProgramme(ctx context.Context, programmeID id.ProgrammeID) (*models.Programme, error) {
	p, err := s.store.FindProgramme(ctx, programmeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "programme not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load programme")
	}
	return p, nil
}

// ListActiveFeeRules returns the programme's active rules in display order.
func (s *Service) ListActiveFeeRules(ctx context.Context, programmeID id.ProgrammeID) ([]*models.FeeRule, error) {
	rules, err := s.store.ListRules(ctx, programmeID, true)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fee rules")
	}
	return rules, nil
}

func (s *Service) ListFeeRules(ctx context.Context, programmeID id.ProgrammeID) ([]*models.FeeRule, error) {
	rules, err := s.store.ListRules(ctx, programmeID, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fee rules")
	}
	return rules, nil
}

func (s *Service) CreateRule(ctx context.Context, req CreateRuleRequest) (*models.FeeRule, error) {
	if _, err := s.GetProgramme(ctx, req.ProgrammeID); err != nil {
		return nil, err
	}
	rule, err := models.NewFeeRule(id.FeeRuleID(uuid.New()), req.ProgrammeID, req.Label, req.Type,
		req.Amount, req.Order, req.Mandatory, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a fee with this label already exists for the programme")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create fee rule")
	}
	s.emit(ctx, audit.EventFeeRuleChanged, rule.ID.String(), rule.Amount.String(), "created")
	return rule, nil
}

// UpdateRuleAmount changes the catalog amount. Fee instances keep the amount
// they were frozen with.
func (s *Service) UpdateRuleAmount(ctx context.Context, ruleID id.FeeRuleID, amount decimal.Decimal) (*models.FeeRule, error) {
	if err := money.CheckNonNegative(amount); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid fee amount")
	}
	rule, err := s.findRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	rule.Amount = amount
	rule.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update fee rule")
	}
	s.emit(ctx, audit.EventFeeRuleChanged, rule.ID.String(), amount.String(), "amount changed")
	return rule, nil
}

// DeactivateRule removes a rule from future instantiation.
func (s *Service) DeactivateRule(ctx context.Context, ruleID id.FeeRuleID) (*models.FeeRule, error) {
	rule, err := s.findRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return rule, nil
	}
	rule.Active = false
	rule.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate fee rule")
	}
	s.emit(ctx, audit.EventFeeRuleChanged, rule.ID.String(), "", "deactivated")
	return rule, nil
}

// SeedDefaultRules installs the default schedule on a programme that has no
// rules at all, active or not. Otherwise it returns the existing rules.
func (s *Service) SeedDefaultRules(ctx context.Context, programmeID id.ProgrammeID) ([]*models.FeeRule, error) {
	existing, err := s.ListFeeRules(ctx, programmeID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	created := make([]*models.FeeRule, 0, len(models.DefaultSchedule()))
	for _, def := range models.DefaultSchedule() {
		rule, err := s.CreateRule(ctx, CreateRuleRequest{
			ProgrammeID: programmeID,
			Label:       def.Label,
			Type:        def.Type,
			Amount:      def.Amount,
			Order:       def.Order,
			Mandatory:   def.Mandatory,
		})
		if err != nil {
			// a concurrent seed won the race for this label
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				continue
			}
			return nil, err
		}
		created = append(created, rule)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "default fee rules seeded",
			"programme_id", programmeID.String(),
			"count", len(created),
		)
	}
	return s.ListActiveFeeRules(ctx, programmeID)
}

func (s *Service) CreateAcademicYear(ctx context.Context, startYear int) (*models.AcademicYear, error) {
	year, err := models.NewAcademicYear(id.AcademicYearID(uuid.New()), startYear, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if err := s.store.CreateYear(ctx, year); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "academic year already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create academic year")
	}
	return year, nil
}

// SetActiveYear makes yearID the only active academic year.
func (s *Service) SetActiveYear(ctx context.Context, yearID id.AcademicYearID) (*models.AcademicYear, error) {
	if err := s.store.ActivateYear(ctx, yearID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "academic year not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate academic year")
	}
	year, err := s.store.FindYear(ctx, yearID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load academic year")
	}
	s.emit(ctx, audit.EventAcademicYearActive, year.ID.String(), "", year.Label)
	return year, nil
}

// ActiveYear returns the active academic year, or a ConfigurationError when
// none is flagged.
func (s *Service) ActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	year, err := s.store.ActiveYear(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeConfiguration, "no active academic year")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active academic year")
	}
	return year, nil
}

func (s *Service) findRule(ctx context.Context, ruleID id.FeeRuleID) (*models.FeeRule, error) {
	rule, err := s.store.FindRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "fee rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fee rule")
	}
	return rule, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, subject, amount, reason string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:  string(event),
		Subject: subject,
		Amount:  amount,
		Reason:  reason,
		ActorID: staffActor(ctx),
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}

func staffActor(ctx context.Context) string {
	staff := requestcontext.StaffID(ctx)
	if staff.IsNil() {
		return ""
	}
	return staff.String()
}

func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

