// Package domain defines typed identifiers shared across modules.
//
// Each identifier wraps a UUID so that, for example, a PaymentID cannot be
// passed where a FeeID is expected. Parse functions are the trust boundary:
// they reject empty, malformed and nil UUIDs.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "esfe/pkg/domain-errors"
)

type (
	ProgrammeID    uuid.UUID
	AcademicYearID uuid.UUID
	ApplicationID  uuid.UUID
	EnrollmentID   uuid.UUID
	FeeRuleID      uuid.UUID
	FeeID          uuid.UUID
	PaymentID      uuid.UUID
	ReceiptID      uuid.UUID
	StudentID      uuid.UUID
	StaffID        uuid.UUID
)

func (id ProgrammeID) String() string    { return uuid.UUID(id).String() }
func (id AcademicYearID) String() string { return uuid.UUID(id).String() }
func (id ApplicationID) String() string  { return uuid.UUID(id).String() }
func (id EnrollmentID) String() string   { return uuid.UUID(id).String() }
func (id FeeRuleID) String() string      { return uuid.UUID(id).String() }
func (id FeeID) String() string          { return uuid.UUID(id).String() }
func (id PaymentID) String() string      { return uuid.UUID(id).String() }
func (id ReceiptID) String() string      { return uuid.UUID(id).String() }
func (id StudentID) String() string      { return uuid.UUID(id).String() }
func (id StaffID) String() string        { return uuid.UUID(id).String() }

func (id ProgrammeID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AcademicYearID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EnrollmentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id FeeRuleID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id FeeID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ReceiptID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id StudentID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id StaffID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs as canonical strings in JSON.
func (id ProgrammeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AcademicYearID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EnrollmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id FeeRuleID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id FeeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id PaymentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ReceiptID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id StudentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id StaffID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ProgrammeID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *AcademicYearID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *ApplicationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *EnrollmentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *FeeRuleID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *FeeID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *PaymentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *ReceiptID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *StudentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *StaffID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func parseUUID(kind, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseProgrammeID(s string) (ProgrammeID, error) {
	u, err := parseUUID("programme id", s)
	return ProgrammeID(u), err
}

func ParseAcademicYearID(s string) (AcademicYearID, error) {
	u, err := parseUUID("academic year id", s)
	return AcademicYearID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID("application id", s)
	return ApplicationID(u), err
}

func ParseEnrollmentID(s string) (EnrollmentID, error) {
	u, err := parseUUID("enrollment id", s)
	return EnrollmentID(u), err
}

func ParseFeeRuleID(s string) (FeeRuleID, error) {
	u, err := parseUUID("fee rule id", s)
	return FeeRuleID(u), err
}

func ParseFeeID(s string) (FeeID, error) {
	u, err := parseUUID("fee id", s)
	return FeeID(u), err
}

func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID("payment id", s)
	return PaymentID(u), err
}

func ParseStaffID(s string) (StaffID, error) {
	u, err := parseUUID("staff id", s)
	return StaffID(u), err
}
