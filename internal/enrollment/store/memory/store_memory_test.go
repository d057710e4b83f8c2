package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esfe/internal/enrollment/models"
	"esfe/internal/enrollment/service"
	id "esfe/pkg/domain"
	"esfe/pkg/platform/sentinel"
)

func newEnrollment() *models.Enrollment {
	now := time.Now()
	return &models.Enrollment{
		ID:            id.EnrollmentID(uuid.New()),
		ApplicationID: id.ApplicationID(uuid.New()),
		ProgrammeID:   id.ProgrammeID(uuid.New()),
		StartYear:     2025,
		CandidateName: "Awa Diallo",
		Status:        models.StatusPending,
		PublicToken:   "ESFE-INS-" + uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newFee(enrollmentID id.EnrollmentID, ruleID id.FeeRuleID, amount int64) *models.FeeInstance {
	return &models.FeeInstance{
		ID:             id.FeeID(uuid.New()),
		EnrollmentID:   enrollmentID,
		RuleID:         ruleID,
		Label:          "Inscription",
		Mandatory:      true,
		AmountExpected: decimal.NewFromInt(amount),
		CreatedAt:      time.Now(),
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := newEnrollment()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, store service.Store) error {
		require.NoError(t, store.CreateEnrollment(ctx, e))
		_, err := store.NextSequence(ctx, models.SequenceMatricule, 2025)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.FindEnrollment(ctx, e.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	seq, err := s.NextSequence(ctx, models.SequenceMatricule, 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestRunInTxRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().RunInTx(ctx, func(context.Context, service.Store) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestCreateEnrollmentUniqueApplication(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := newEnrollment()
	require.NoError(t, s.CreateEnrollment(ctx, e))

	dup := newEnrollment()
	dup.ApplicationID = e.ApplicationID
	assert.ErrorIs(t, s.CreateEnrollment(ctx, dup), sentinel.ErrConflict)
}

func TestCreateFeesSkipsExistingPairs(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := newEnrollment()
	require.NoError(t, s.CreateEnrollment(ctx, e))
	ruleA, ruleB := id.FeeRuleID(uuid.New()), id.FeeRuleID(uuid.New())

	n, err := s.CreateFees(ctx, []*models.FeeInstance{newFee(e.ID, ruleA, 100)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CreateFees(ctx, []*models.FeeInstance{newFee(e.ID, ruleA, 999), newFee(e.ID, ruleB, 50)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fees, err := s.ListFees(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, fees, 2)
	for _, f := range fees {
		if f.RuleID == ruleA {
			assert.True(t, f.AmountExpected.Equal(decimal.NewFromInt(100)))
		}
	}
}

func TestUpdateFeeKeepsFrozenAmountAndSettlement(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := newEnrollment()
	require.NoError(t, s.CreateEnrollment(ctx, e))
	fee := newFee(e.ID, id.FeeRuleID(uuid.New()), 100)
	_, err := s.CreateFees(ctx, []*models.FeeInstance{fee})
	require.NoError(t, err)

	now := time.Now()
	fee.IsSettled = true
	fee.SettledAt = &now
	fee.AmountExpected = decimal.NewFromInt(1)
	require.NoError(t, s.UpdateFee(ctx, fee))

	fee.IsSettled = false
	require.NoError(t, s.UpdateFee(ctx, fee))

	stored, err := s.FindFee(ctx, fee.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSettled)
	assert.True(t, stored.AmountExpected.Equal(decimal.NewFromInt(100)))
}

func TestTransitionPaymentIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := newEnrollment()
	require.NoError(t, s.CreateEnrollment(ctx, e))
	fee := newFee(e.ID, id.FeeRuleID(uuid.New()), 100)
	_, err := s.CreateFees(ctx, []*models.FeeInstance{fee})
	require.NoError(t, err)

	p := &models.Payment{
		ID:           id.PaymentID(uuid.New()),
		FeeID:        fee.ID,
		EnrollmentID: e.ID,
		Amount:       decimal.NewFromInt(100),
		Method:       models.MethodCash,
		Status:       models.PaymentPending,
	}
	require.NoError(t, s.CreatePayment(ctx, p))

	staff := id.StaffID(uuid.New())
	require.NoError(t, p.Validate(staff, time.Now()))
	require.NoError(t, s.TransitionPayment(ctx, p, models.PaymentPending))
	assert.ErrorIs(t, s.TransitionPayment(ctx, p, models.PaymentPending), sentinel.ErrInvalidState)

	stored, err := s.FindPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentValidated, stored.Status)
}

func TestMatriculeIsUniqueAndImmutable(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, second := newEnrollment(), newEnrollment()
	require.NoError(t, s.CreateEnrollment(ctx, first))
	require.NoError(t, s.CreateEnrollment(ctx, second))

	first.Activate("ESFE-2025-000001", time.Now())
	require.NoError(t, s.UpdateEnrollment(ctx, first))

	second.Activate("ESFE-2025-000001", time.Now())
	assert.ErrorIs(t, s.UpdateEnrollment(ctx, second), sentinel.ErrConflict)

	first.Matricule = "ESFE-2025-000099"
	assert.Error(t, s.UpdateEnrollment(ctx, first))
}

func TestReceiptUniquePerPayment(t *testing.T) {
	ctx := context.Background()
	s := New()
	paymentID := id.PaymentID(uuid.New())
	rec := &models.Receipt{ID: id.ReceiptID(uuid.New()), PaymentID: paymentID, Reference: "ESFE-2025-000001", Year: 2025, Sequence: 1}
	require.NoError(t, s.CreateReceipt(ctx, rec))

	again := *rec
	again.ID = id.ReceiptID(uuid.New())
	again.Reference = "ESFE-2025-000002"
	assert.ErrorIs(t, s.CreateReceipt(ctx, &again), sentinel.ErrConflict)

	require.NoError(t, s.SetReceiptArtifact(ctx, rec.ID, "receipts/ESFE-2025-000001.txt"))
	stored, err := s.FindReceiptByReference(ctx, "ESFE-2025-000001")
	require.NoError(t, err)
	assert.Equal(t, "receipts/ESFE-2025-000001.txt", stored.ArtifactRef)
}

func TestNextSequenceConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	const n = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.NextSequence(ctx, models.SequenceReceipt, 2025)
			assert.NoError(t, err)
			mu.Lock()
			seen[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i])
	}

	other, err := s.NextSequence(ctx, models.SequenceReceipt, 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}
