// Package service is the enrollment financial pipeline: fee instantiation,
// the payment ledger, settlement, activation and receipts.
//
// Every state change runs inside TxRunner.RunInTx with the enrollment row
// locked first. Emails, receipt rendering and cache invalidation run after
// commit and never undo what was committed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	catalogmodels "esfe/internal/catalog/models"
	"esfe/internal/enrollment/metrics"
	"esfe/internal/enrollment/models"
	"esfe/internal/notify"
	"esfe/internal/receipt"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
)

const (
	defaultInstitution = "ESFE"
	maxConflictRetries = 3
	studentPasswordLen = 10
)

// Catalog is the read-only view of fee rules and academic years.
type Catalog interface {
	ListActiveFeeRules(ctx context.Context, programmeID id.ProgrammeID) ([]*catalogmodels.FeeRule, error)
	ActiveYear(ctx context.Context) (*catalogmodels.AcademicYear, error)
	GetProgramme(ctx context.Context, programmeID id.ProgrammeID) (*catalogmodels.Programme, error)
}

type Notifier interface {
	SendCredentials(ctx context.Context, msg notify.CredentialsMessage) error
	SendPaymentConfirmation(ctx context.Context, msg notify.ConfirmationMessage) error
}

// Renderer turns a receipt document into an opaque artifact.
type Renderer interface {
	Render(ctx context.Context, doc receipt.Document) ([]byte, error)
}

// ArtifactStore keeps rendered artifacts and hands back a reference.
type ArtifactStore interface {
	Save(ctx context.Context, name string, blob []byte) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// StatusCache fronts public status lookups.
type StatusCache interface {
	Get(ctx context.Context, token string, load func(ctx context.Context) (*models.StatusSnapshot, error)) (*models.StatusSnapshot, error)
	Invalidate(ctx context.Context, token string)
}

// CashVerifier consumes the single-use code a cash desk agent handed out and
// reports the agent who issued it.
type CashVerifier interface {
	Consume(ctx context.Context, enrollmentID id.EnrollmentID, code string) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	tx      TxRunner
	catalog Catalog

	notifier  Notifier
	renderer  Renderer
	artifacts ArtifactStore
	cache     StatusCache
	cash      CashVerifier

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	institution     string
	publicBaseURL   string
	studentLoginURL string
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithReceiptRenderer(r Renderer, artifacts ArtifactStore) Option {
	return func(s *Service) {
		s.renderer = r
		s.artifacts = artifacts
	}
}

func WithStatusCache(c StatusCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithCashVerifier makes cash payments require a cash desk code.
func WithCashVerifier(v CashVerifier) Option {
	return func(s *Service) {
		s.cash = v
	}
}

// WithInstitution sets the prefix of matricules, receipt references and
// public tokens.
func WithInstitution(code string) Option {
	return func(s *Service) {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			s.institution = code
		}
	}
}

func WithPublicBaseURL(url string) Option {
	return func(s *Service) {
		s.publicBaseURL = strings.TrimRight(url, "/")
	}
}

func WithStudentLoginURL(url string) Option {
	return func(s *Service) {
		s.studentLoginURL = url
	}
}

func New(store Store, tx TxRunner, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          tx,
		catalog:     catalog,
		logger:      slog.Default(),
		tracer:      otel.Tracer("esfe/enrollment"),
		institution: defaultInstitution,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// retryOnConflict reruns fn when it fails with contention. Each attempt
// opens a fresh transaction and so re-reads under fresh locks.
func (s *Service) retryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		s.metrics.IncConflictRetry()
		s.logger.WarnContext(ctx, "transaction conflict, retrying",
			"attempt", attempt+1,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return dErrors.Wrap(err, dErrors.CodeConflict, "operation kept conflicting, try again")
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, enrollmentID id.EnrollmentID, subject, amount, reason string) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		EnrollmentID: enrollmentID.String(),
		Subject:      subject,
		Action:       string(event),
		Amount:       amount,
		Reason:       reason,
		ActorID:      actorID(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"event", event,
			"enrollment_id", enrollmentID.String(),
			"error", err,
		)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attrs ...any) {
	args := append([]any{
		"event", string(event),
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.InfoContext(ctx, string(event), args...)
}

// dependencyFailure logs a post-commit collaborator failure and records it.
func (s *Service) dependencyFailure(ctx context.Context, collaborator string, event audit.AuditEvent, enrollmentID id.EnrollmentID, subject string, err error) error {
	s.metrics.IncDependencyFailure(collaborator)
	s.logger.ErrorContext(ctx, collaborator+" failed after commit",
		"enrollment_id", enrollmentID.String(),
		"subject", subject,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, event, enrollmentID, subject, "", err.Error())
	return dErrors.Wrap(err, dErrors.CodeDependency, collaborator+" failed")
}

func (s *Service) invalidate(ctx context.Context, e *models.Enrollment) {
	if s.cache != nil && e != nil {
		s.cache.Invalidate(ctx, e.PublicToken)
	}
}

func (s *Service) publicURL(token string) string {
	return s.publicBaseURL + "/public/enrollments/" + token
}

func actorID(ctx context.Context) string {
	staff := requestcontext.StaffID(ctx)
	if staff.IsNil() {
		return ""
	}
	return staff.String()
}

// storeErr maps store sentinels to domain errors. ErrConflict is passed
// through untouched so retryOnConflict sees it.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return err
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, what+" changed concurrently")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+what)
}
