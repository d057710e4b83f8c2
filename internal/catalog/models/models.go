package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/money"
)

type FeeType string

const (
	FeeTypeRegistration FeeType = "registration"
	FeeTypeTuition      FeeType = "tuition"
	FeeTypeOther        FeeType = "other"
)

func (t FeeType) IsValid() bool {
	switch t {
	case FeeTypeRegistration, FeeTypeTuition, FeeTypeOther:
		return true
	}
	return false
}

// Programme is an academic programme students enroll into.
type Programme struct {
	ID        id.ProgrammeID `json:"id"`
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewProgramme(programmeID id.ProgrammeID, code, name string, now time.Time) (*Programme, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "programme code and name are required")
	}
	return &Programme{ID: programmeID, Code: code, Name: name, CreatedAt: now}, nil
}

// FeeRule is a catalog entry defining an expected charge for a programme.
//
// Invariants:
//   - Label is unique per programme
//   - Amount is non-negative with at most two decimal places
//   - Editing Amount never touches fee instances already created from the rule
type FeeRule struct {
	ID          id.FeeRuleID    `json:"id"`
	ProgrammeID id.ProgrammeID  `json:"programme_id"`
	Label       string          `json:"label"`
	Type        FeeType         `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Order       int             `json:"order"`
	Mandatory   bool            `json:"mandatory"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewFeeRule(ruleID id.FeeRuleID, programmeID id.ProgrammeID, label string, feeType FeeType, amount decimal.Decimal, order int, mandatory bool, now time.Time) (*FeeRule, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fee label is required")
	}
	if len(label) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fee label must be 128 characters or less")
	}
	if !feeType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid fee type: "+string(feeType))
	}
	if err := money.CheckNonNegative(amount); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "invalid fee amount")
	}
	if order < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "fee order must not be negative")
	}
	return &FeeRule{
		ID:          ruleID,
		ProgrammeID: programmeID,
		Label:       label,
		Type:        feeType,
		Amount:      amount,
		Order:       order,
		Mandatory:   mandatory,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AcademicYear is a school year such as "2025-2026". At most one is active.
type AcademicYear struct {
	ID        id.AcademicYearID `json:"id"`
	Label     string            `json:"label"`
	StartYear int               `json:"start_year"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewAcademicYear(yearID id.AcademicYearID, startYear int, now time.Time) (*AcademicYear, error) {
	if startYear < 2000 || startYear > 2200 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "start year out of range")
	}
	return &AcademicYear{
		ID:        yearID,
		Label:     YearLabel(startYear),
		StartYear: startYear,
		CreatedAt: now,
	}, nil
}

// YearLabel renders "2025-2026" for 2025.
func YearLabel(startYear int) string {
	return strconv.Itoa(startYear) + "-" + strconv.Itoa(startYear+1)
}
