package models

import (
	"time"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
)

// Status is the administrative axis of an enrollment. It is independent from
// IsActive, which is the financial access gate.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Enrollment is the registration of an accepted application to a programme
// for one academic year.
//
// Invariants:
//   - ApplicationID is unique across enrollments
//   - IsActive only moves false to true through activation; Suspend and
//     Cancel are the only operations that force it back to false
//   - Matricule is empty until the first activation and never changes after
//   - PublicToken is generated once at creation
type Enrollment struct {
	ID             id.EnrollmentID   `json:"id"`
	ApplicationID  id.ApplicationID  `json:"application_id"`
	ProgrammeID    id.ProgrammeID    `json:"programme_id"`
	AcademicYearID id.AcademicYearID `json:"academic_year_id"`
	// StartYear is copied from the academic year; matricules are numbered
	// per start year.
	StartYear      int         `json:"start_year"`
	CandidateName  string      `json:"candidate_name"`
	CandidateEmail string      `json:"candidate_email"`
	Status         Status      `json:"status"`
	IsActive       bool        `json:"is_active"`
	Matricule      string      `json:"matricule,omitempty"`
	PublicToken    string      `json:"public_token"`
	AccessCodeHash string      `json:"-"`
	ValidatedBy    *id.StaffID `json:"validated_by,omitempty"`
	ValidatedAt    *time.Time  `json:"validated_at,omitempty"`
	FinalizedAt    *time.Time  `json:"finalized_at,omitempty"`
	StatusReason   string      `json:"status_reason,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CanAcceptPayments rejects payment creation and validation once the
// enrollment is frozen by an administrative override.
func (e *Enrollment) CanAcceptPayments() error {
	switch e.Status {
	case StatusCancelled:
		return dErrors.New(dErrors.CodeValidation, "enrollment is cancelled")
	case StatusSuspended:
		return dErrors.New(dErrors.CodeValidation, "enrollment is suspended")
	}
	return nil
}

// CanActivate reports whether activation may run at all, eligibility aside.
func (e *Enrollment) CanActivate() bool {
	return !e.IsActive && e.Status != StatusCancelled && e.Status != StatusSuspended
}

// Activate opens access. The matricule is only set when none was assigned.
func (e *Enrollment) Activate(matricule string, now time.Time) {
	if e.Matricule == "" {
		e.Matricule = matricule
	}
	e.IsActive = true
	e.FinalizedAt = &now
	e.UpdatedAt = now
}

// MarkValidated records the staff review of the dossier.
func (e *Enrollment) MarkValidated(staff id.StaffID, now time.Time) error {
	if e.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "only pending enrollments can be validated")
	}
	e.Status = StatusValidated
	e.ValidatedBy = &staff
	e.ValidatedAt = &now
	e.UpdatedAt = now
	return nil
}

func (e *Enrollment) Suspend(reason string, now time.Time) error {
	if e.Status == StatusCancelled {
		return dErrors.New(dErrors.CodeInvalidState, "enrollment is cancelled")
	}
	e.Status = StatusSuspended
	e.IsActive = false
	e.StatusReason = reason
	e.UpdatedAt = now
	return nil
}

func (e *Enrollment) Cancel(reason string, now time.Time) error {
	if e.Status == StatusCancelled {
		return dErrors.New(dErrors.CodeInvalidState, "enrollment is already cancelled")
	}
	e.Status = StatusCancelled
	e.IsActive = false
	e.StatusReason = reason
	e.UpdatedAt = now
	return nil
}

// Reinstate lifts a suspension. Access is restored by a separate activation
// pass.
func (e *Enrollment) Reinstate(now time.Time) error {
	if e.Status != StatusSuspended {
		return dErrors.New(dErrors.CodeInvalidState, "only suspended enrollments can be reinstated")
	}
	e.Status = StatusPending
	if e.ValidatedAt != nil {
		e.Status = StatusValidated
	}
	e.StatusReason = ""
	e.UpdatedAt = now
	return nil
}
