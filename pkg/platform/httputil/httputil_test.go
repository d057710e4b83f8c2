package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "esfe/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok)
	})

	t.Run("validation error includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "amount exceeds remaining balance"))

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "amount exceeds remaining balance", body["error_description"])
	})

	t.Run("configuration error maps to precondition failed", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeConfiguration, "no mandatory fees"))
		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	})
}

type sampleRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=cash mobile_money bank online"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"100","method":"cash"}`))
		var req sampleRequest
		require.NoError(t, DecodeJSON(r, &req))
		assert.Equal(t, "cash", req.Method)
	})

	t.Run("unknown method fails validation", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"100","method":"cheque"}`))
		var req sampleRequest
		err := DecodeJSON(r, &req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
		assert.Contains(t, err.Error(), "method oneof")
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","method":"cash","x":1}`))
		var req sampleRequest
		require.Error(t, DecodeJSON(r, &req))
	})
}
