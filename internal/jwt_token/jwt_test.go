package jwttoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")
var staffID = id.StaffID(uuid.New())

func Test_GenerateStaffToken(t *testing.T) {
	token, err := jwtService.GenerateStaffToken(staffID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, staffID.String(), claims.StaffID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", err.Error())
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateStaffToken(staffID, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "token has expired", err.Error())
}

func Test_ValidateToken_WrongIssuer(t *testing.T) {
	other := NewJWTService("test-signing-key", "someone-else")
	token, err := other.GenerateStaffToken(staffID, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateStaffToken(t *testing.T) {
	token, err := jwtService.GenerateStaffToken(staffID, time.Hour)
	require.NoError(t, err)

	got, err := jwtService.ValidateStaffToken(token)
	require.NoError(t, err)
	assert.Equal(t, staffID, got)
}
