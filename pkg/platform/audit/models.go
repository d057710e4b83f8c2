package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryFinancial covers money-related transitions. These are kept for
	// the accounting retention period and are never sampled.
	CategoryFinancial EventCategory = "financial"

	// CategoryAdministrative covers staff overrides: suspension, cancellation,
	// catalog changes.
	CategoryAdministrative EventCategory = "administrative"

	// CategoryOperations covers routine activity and collaborator failures.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory
	Timestamp    time.Time
	EnrollmentID string
	Subject      string
	Action       string
	Amount       string
	Reason       string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID is the staff member who performed the action, empty for
	// student-initiated or system actions.
	ActorID string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	EventEnrollmentCreated    AuditEvent = "enrollment_created"
	EventFeesInstantiated     AuditEvent = "fees_instantiated"
	EventPaymentCreated       AuditEvent = "payment_created"
	EventPaymentValidated     AuditEvent = "payment_validated"
	EventPaymentRejected      AuditEvent = "payment_rejected"
	EventFeeSettled           AuditEvent = "fee_settled"
	EventEnrollmentActivated  AuditEvent = "enrollment_activated"
	EventStudentProvisioned   AuditEvent = "student_provisioned"
	EventReceiptIssued        AuditEvent = "receipt_issued"
	EventEnrollmentSuspended  AuditEvent = "enrollment_suspended"
	EventEnrollmentCancelled  AuditEvent = "enrollment_cancelled"
	EventEnrollmentReinstated AuditEvent = "enrollment_reinstated"
	EventEnrollmentValidated  AuditEvent = "enrollment_validated"
	EventFeeOverridden        AuditEvent = "fee_overridden"
	EventFeeRuleChanged       AuditEvent = "fee_rule_changed"
	EventAcademicYearActive   AuditEvent = "academic_year_activated"
	EventCashSessionOpened    AuditEvent = "cash_session_opened"
	EventNotificationFailed   AuditEvent = "notification_failed"
	EventRenderFailed         AuditEvent = "receipt_render_failed"
	EventCredentialsReissued  AuditEvent = "credentials_reissued"
	EventCashAgentRegistered  AuditEvent = "cash_agent_registered"
	EventCashAgentStatus      AuditEvent = "cash_agent_status_changed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPaymentCreated:      CategoryFinancial,
	EventPaymentValidated:    CategoryFinancial,
	EventPaymentRejected:     CategoryFinancial,
	EventFeeSettled:          CategoryFinancial,
	EventEnrollmentActivated: CategoryFinancial,
	EventReceiptIssued:       CategoryFinancial,
	EventFeeOverridden:       CategoryFinancial,

	EventEnrollmentCreated:    CategoryAdministrative,
	EventFeesInstantiated:     CategoryAdministrative,
	EventStudentProvisioned:   CategoryAdministrative,
	EventEnrollmentSuspended:  CategoryAdministrative,
	EventEnrollmentCancelled:  CategoryAdministrative,
	EventEnrollmentReinstated: CategoryAdministrative,
	EventEnrollmentValidated:  CategoryAdministrative,
	EventFeeRuleChanged:       CategoryAdministrative,
	EventAcademicYearActive:   CategoryAdministrative,
	EventCredentialsReissued:  CategoryAdministrative,
	EventCashAgentRegistered:  CategoryAdministrative,
	EventCashAgentStatus:      CategoryAdministrative,

	EventCashSessionOpened:  CategoryOperations,
	EventNotificationFailed: CategoryOperations,
	EventRenderFailed:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
