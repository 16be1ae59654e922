package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env
}

func TestWriteData(t *testing.T) {
	w := httptest.NewRecorder()
	writeData(w, http.StatusCreated, map[string]string{"id": "123"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"id":"123"}}`, w.Body.String())
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewValidationError("name", "cannot be empty"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "validation_error", env.Code)
	assert.Contains(t, env.Error, "name")
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{domainErrors.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Unauthorized"},
		{domainErrors.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found"},
		{domainErrors.ErrAccountNotFound, http.StatusNotFound, "not_found", "account not found"},
		{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden", ""},
		{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", "Invalid amount"},
		{domainErrors.ErrInvalidAccountType, http.StatusBadRequest, "invalid_account_type", ""},
		{domainErrors.ErrDefaultConflict, http.StatusConflict, "conflict", "concurrent modification, please retry"},
		{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable", "identity provider unavailable"},
		{fmt.Errorf("wrapped: %w", domainErrors.ErrInvalidAmount), http.StatusBadRequest, "invalid_amount", "Invalid amount"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			env := decodeEnvelope(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Error)
			}
		})
	}
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDomainError("custom_error", "custom error message", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "custom_error", env.Code)
	assert.Equal(t, "custom error message", env.Error)
}

func TestWriteError_UnknownErrorIsHidden(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewStoreError("insert account", errors.New("connection reset")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "internal_error", env.Code)
	assert.Equal(t, "internal server error", env.Error)
}

func TestDecodeAndValidate(t *testing.T) {
	type body struct {
		Name string `json:"name" validate:"required"`
	}

	var ok body
	require.NoError(t, decodeAndValidate(httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"Main"}`)), &ok))
	assert.Equal(t, "Main", ok.Name)

	var validationErr *domainErrors.ValidationError

	err := decodeAndValidate(httptest.NewRequest("POST", "/", strings.NewReader(`{invalid`)), &body{})
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "body", validationErr.Field)
	assert.Contains(t, validationErr.Message, "invalid JSON")

	err = decodeAndValidate(httptest.NewRequest("POST", "/", strings.NewReader(`{"name":""}`)), &body{})
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "Name", validationErr.Field)
	assert.Contains(t, validationErr.Message, "validation failed")

	err = decodeAndValidate(httptest.NewRequest("POST", "/", bytes.NewReader(nil)), &body{})
	assert.Error(t, err)
}
