// Package cashdesk issues the short-lived codes that authorize a cash
// payment. A registered payment agent opens a session for an enrollment at
// the desk and reads the code to the student; the code is consumed by the
// payment it authorizes, which records the agent.
package cashdesk

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"esfe/internal/enrollment/models"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/audit"
	"esfe/pkg/requestcontext"
	"esfe/pkg/secrets"
)

const (
	DefaultCodeTTL = 5 * time.Minute
	codeLength     = 6
)

var agentCodePattern = regexp.MustCompile(`^[0-9A-F]{6}$`)

// Session is a live verification code for one enrollment.
type Session struct {
	EnrollmentID id.EnrollmentID `json:"enrollment_id"`
	AgentCode    string          `json:"agent_code"`
	Code         string          `json:"code"`
	ExpiresAt    time.Time       `json:"expires_at"`
	// Reused is set when an unexpired code was handed out again.
	Reused bool `json:"reused"`
}

// CodeStore keeps at most one live code per enrollment.
type CodeStore interface {
	// Issue returns the live code for the enrollment, or stores candidate
	// when there is none.
	Issue(ctx context.Context, enrollmentID id.EnrollmentID, agentCode, candidate string, ttl time.Duration) (*Session, error)
	// Consume deletes the code when it matches and reports whether it did,
	// along with the agent who issued it.
	Consume(ctx context.Context, enrollmentID id.EnrollmentID, code string) (agentCode string, ok bool, err error)
}

// Enrollments is the lookup used to refuse sessions for frozen enrollments.
type Enrollments interface {
	FindEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	codes          CodeStore
	agents         AgentStore
	enrollments    Enrollments
	ttl            time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

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

func New(codes CodeStore, agents AgentStore, enrollments Enrollments, opts ...Option) *Service {
	s := &Service{
		codes:       codes,
		agents:      agents,
		enrollments: enrollments,
		ttl:         DefaultCodeTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a cash session for an active registered agent. Opening again
// while a code is live returns the same code.
func (s *Service) Open(ctx context.Context, enrollmentID id.EnrollmentID, agentCode string) (*Session, error) {
	agentCode = strings.ToUpper(strings.TrimSpace(agentCode))
	if !agentCodePattern.MatchString(agentCode) {
		return nil, dErrors.New(dErrors.CodeValidation, "agent code must be 6 hexadecimal characters")
	}
	if _, err := s.verifyAgent(ctx, agentCode); err != nil {
		return nil, err
	}
	e, err := s.enrollments.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "enrollment not found")
	}
	if err := e.CanAcceptPayments(); err != nil {
		return nil, err
	}

	candidate, err := secrets.Digits(codeLength)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate cash code")
	}
	session, err := s.codes.Issue(ctx, enrollmentID, agentCode, candidate, s.ttl)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to store cash code")
	}

	if !session.Reused {
		s.emitFor(ctx, audit.EventCashSessionOpened, enrollmentID.String(), agentCode, "")
	}
	s.logger.InfoContext(ctx, "cash session opened",
		"enrollment_id", enrollmentID.String(),
		"agent_code", agentCode,
		"reused", session.Reused,
		"request_id", requestcontext.RequestID(ctx),
	)
	return session, nil
}

// Consume spends a code and returns the agent who issued it. It satisfies
// the enrollment service's cash verifier.
func (s *Service) Consume(ctx context.Context, enrollmentID id.EnrollmentID, code string) (string, error) {
	agentCode, ok, err := s.codes.Consume(ctx, enrollmentID, strings.TrimSpace(code))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDependency, "failed to verify cash code")
	}
	if !ok {
		return "", dErrors.New(dErrors.CodeForbidden, "invalid or expired cash code")
	}
	return agentCode, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, subject, reason string) {
	s.emitFor(ctx, event, "", subject, reason)
}

func (s *Service) emitFor(ctx context.Context, event audit.AuditEvent, enrollmentID, subject, reason string) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		EnrollmentID: enrollmentID,
		Subject:      subject,
		Action:       string(event),
		Reason:       reason,
		ActorID:      actorID(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}

func actorID(ctx context.Context) string {
	staff := requestcontext.StaffID(ctx)
	if staff.IsNil() {
		return ""
	}
	return staff.String()
}
