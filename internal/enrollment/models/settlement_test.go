package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "esfe/pkg/domain"
)

func fee(amount int64, mandatory bool) *FeeInstance {
	return &FeeInstance{
		ID:             id.FeeID(uuid.New()),
		AmountExpected: decimal.NewFromInt(amount),
		Mandatory:      mandatory,
	}
}

func payment(amount int64, status PaymentStatus) *Payment {
	return &Payment{ID: id.PaymentID(uuid.New()), Amount: decimal.NewFromInt(amount), Status: status}
}

func TestAmountToPay(t *testing.T) {
	f := fee(410000, true)
	assert.True(t, f.AmountToPay().Equal(decimal.NewFromInt(410000)))

	override := decimal.NewFromInt(300000)
	f.AmountOverride = &override
	assert.True(t, f.AmountToPay().Equal(override))
}

func TestTotalPaidAndRemaining(t *testing.T) {
	f := fee(200000, true)
	payments := []*Payment{
		payment(50000, PaymentValidated),
		payment(70000, PaymentPending),
		payment(90000, PaymentRejected),
		payment(25000, PaymentValidated),
	}
	assert.True(t, TotalPaid(payments).Equal(decimal.NewFromInt(75000)))
	assert.True(t, Remaining(f, payments).Equal(decimal.NewFromInt(125000)))

	t.Run("overpayment clamps remaining at zero", func(t *testing.T) {
		over := []*Payment{payment(250000, PaymentValidated)}
		assert.True(t, Remaining(f, over).IsZero())
	})
}

func TestRatchet(t *testing.T) {
	now := time.Now()

	t.Run("partial payment leaves fee unsettled", func(t *testing.T) {
		f := fee(200000, true)
		settled, changed := Ratchet(f, []*Payment{payment(100000, PaymentValidated)}, now)
		assert.False(t, settled)
		assert.False(t, changed)
		assert.Nil(t, f.SettledAt)
	})

	t.Run("full payment settles once", func(t *testing.T) {
		f := fee(200000, true)
		payments := []*Payment{payment(200000, PaymentValidated)}
		settled, changed := Ratchet(f, payments, now)
		require.True(t, settled)
		require.True(t, changed)
		require.NotNil(t, f.SettledAt)

		settled, changed = Ratchet(f, payments, now.Add(time.Minute))
		assert.True(t, settled)
		assert.False(t, changed)
		assert.Equal(t, now, *f.SettledAt)
	})

	t.Run("settled fee never regresses", func(t *testing.T) {
		f := fee(200000, true)
		f.IsSettled = true
		settled, changed := Ratchet(f, nil, now)
		assert.True(t, settled)
		assert.False(t, changed)
	})

	t.Run("zero amount fee settles without payments", func(t *testing.T) {
		f := fee(0, true)
		settled, changed := Ratchet(f, nil, now)
		assert.True(t, settled)
		assert.True(t, changed)
	})
}

func TestEligible(t *testing.T) {
	settled := func(f *FeeInstance) *FeeInstance { f.IsSettled = true; return f }

	cases := []struct {
		name string
		fees []*FeeInstance
		want bool
	}{
		{"no fees", nil, false},
		{"only optional fees, all settled", []*FeeInstance{settled(fee(1, false))}, false},
		{"mandatory unsettled", []*FeeInstance{settled(fee(1, true)), fee(1, true)}, false},
		{"all mandatory settled", []*FeeInstance{settled(fee(1, true)), settled(fee(1, true))}, true},
		{"optional unsettled does not block", []*FeeInstance{settled(fee(1, true)), fee(1, false)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Eligible(tc.fees))
		})
	}
}
