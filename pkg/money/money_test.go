package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "esfe/pkg/domain-errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"integer amount", "410000", "410000", false},
		{"two decimals", "1500.50", "1500.5", false},
		{"zero is allowed", "0", "0", false},
		{"negative rejected", "-1", "", true},
		{"three decimals rejected", "10.123", "", true},
		{"garbage rejected", "abc", "", true},
		{"empty rejected", " ", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestCheckPositive(t *testing.T) {
	assert.Error(t, CheckPositive(decimal.Zero))
	assert.NoError(t, CheckPositive(decimal.NewFromInt(1)))
}

func TestClampZeroAndSum(t *testing.T) {
	assert.True(t, ClampZero(decimal.NewFromInt(-5)).IsZero())
	assert.Equal(t, "7", ClampZero(decimal.NewFromInt(7)).String())
	assert.Equal(t, "610000", Sum(decimal.NewFromInt(410000), decimal.NewFromInt(200000)).String())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "410 000 FCFA", Format(decimal.NewFromInt(410000)))
	assert.Equal(t, "1 500,50 FCFA", Format(decimal.RequireFromString("1500.5")))
	assert.Equal(t, "0 FCFA", Format(decimal.Zero))
}
