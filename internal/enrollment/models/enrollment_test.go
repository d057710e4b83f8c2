package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
)

func TestEnrollmentLifecycle(t *testing.T) {
	now := time.Now()
	staff := id.StaffID(uuid.New())

	t.Run("activation keeps the first matricule", func(t *testing.T) {
		e := &Enrollment{Status: StatusPending}
		require.True(t, e.CanActivate())
		e.Activate("ESFE-2025-000001", now)
		assert.True(t, e.IsActive)
		assert.False(t, e.CanActivate())

		e.IsActive = false
		e.Activate("ESFE-2025-000009", now)
		assert.Equal(t, "ESFE-2025-000001", e.Matricule)
	})

	t.Run("suspension forces inactive and blocks payments", func(t *testing.T) {
		e := &Enrollment{Status: StatusValidated, IsActive: true}
		require.NoError(t, e.Suspend("dossier incomplet", now))
		assert.False(t, e.IsActive)
		assert.False(t, e.CanActivate())
		assert.True(t, dErrors.HasCode(e.CanAcceptPayments(), dErrors.CodeValidation))
	})

	t.Run("reinstate restores the prior administrative status", func(t *testing.T) {
		e := &Enrollment{Status: StatusPending}
		require.NoError(t, e.MarkValidated(staff, now))
		require.NoError(t, e.Suspend("x", now))
		require.NoError(t, e.Reinstate(now))
		assert.Equal(t, StatusValidated, e.Status)
		assert.Empty(t, e.StatusReason)

		fresh := &Enrollment{Status: StatusPending}
		require.NoError(t, fresh.Suspend("x", now))
		require.NoError(t, fresh.Reinstate(now))
		assert.Equal(t, StatusPending, fresh.Status)
	})

	t.Run("cancelled is final", func(t *testing.T) {
		e := &Enrollment{Status: StatusPending}
		require.NoError(t, e.Cancel("abandon", now))
		assert.True(t, dErrors.HasCode(e.Cancel("again", now), dErrors.CodeInvalidState))
		assert.True(t, dErrors.HasCode(e.Suspend("x", now), dErrors.CodeInvalidState))
		assert.True(t, dErrors.HasCode(e.Reinstate(now), dErrors.CodeInvalidState))
		assert.False(t, e.CanActivate())
	})
}

func TestPaymentTransitions(t *testing.T) {
	now := time.Now()
	staff := id.StaffID(uuid.New())

	p := &Payment{Amount: decimal.NewFromInt(1000), Status: PaymentPending}
	require.NoError(t, p.Validate(staff, now))
	assert.Equal(t, PaymentValidated, p.Status)
	assert.Equal(t, staff, *p.ValidatedBy)

	assert.True(t, dErrors.HasCode(p.Validate(staff, now), dErrors.CodeInvalidState))
	assert.True(t, dErrors.HasCode(p.Reject(staff, "late", now), dErrors.CodeInvalidState))

	r := &Payment{Status: PaymentPending}
	require.NoError(t, r.Reject(staff, "wrong reference", now))
	assert.Equal(t, PaymentRejected, r.Status)
	assert.True(t, dErrors.HasCode(r.Validate(staff, now), dErrors.CodeInvalidState))
}

func TestFormatNumbers(t *testing.T) {
	assert.Equal(t, "ESFE-2025-000001", FormatMatricule("ESFE", 2025, 1))
	assert.Equal(t, "ESFE-2026-001234", FormatReceiptReference("ESFE", 2026, 1234))
}

func TestPaymentMethod(t *testing.T) {
	assert.True(t, MethodMobileMoney.IsValid())
	assert.False(t, PaymentMethod("cheque").IsValid())
}
