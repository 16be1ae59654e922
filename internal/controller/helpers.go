package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; message overrides err.Error() when set.
var errorMappings = []errorMapping{
	{domainErrors.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Unauthorized"},
	{domainErrors.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found"},
	{domainErrors.ErrAccountNotFound, http.StatusNotFound, "not_found", ""},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden", ""},
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", "Invalid amount"},
	{domainErrors.ErrInvalidAccountType, http.StatusBadRequest, "invalid_account_type", ""},
	{domainErrors.ErrProfileIncomplete, http.StatusUnprocessableEntity, "profile_incomplete", ""},
	{domainErrors.ErrDefaultConflict, http.StatusConflict, "conflict", "concurrent modification, please retry"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request", ""},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable", "identity provider unavailable"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status, resp := errorResponse(err)
	writeJSON(w, status, resp)
}

// errorResponse maps err onto a status and failure envelope. Unknown errors
// are logged and hidden behind a generic message.
func errorResponse(err error) (int, Envelope) {
	resp := Envelope{Success: false, Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		return http.StatusBadRequest, resp
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.message != "" {
				resp.Error = m.message
			}
			return m.status, resp
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		return http.StatusUnprocessableEntity, resp
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	return http.StatusInternalServerError, resp
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
