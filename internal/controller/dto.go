package controller

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/user"
)

// Envelope wraps every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// --- Request DTOs ---

// Amount accepts a JSON string or number and keeps its literal text, so
// "12.50" and 12.50 reach the decimal parser unchanged.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(b)
	return nil
}

// CreateAccountRequest is the JSON body of POST /api/v1/accounts. Balance is
// checked by the service so that a bad amount yields "Invalid amount".
type CreateAccountRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Type      string `json:"type" validate:"required"`
	Balance   Amount `json:"balance"`
	IsDefault bool   `json:"isDefault"`
}

// --- Response DTOs ---

type UserResponse struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
}

func FromUser(u *user.User) UserResponse {
	return UserResponse{
		ID:         u.ID.String(),
		ExternalID: u.ExternalID,
		Email:      u.Email,
		CreatedAt:  u.CreatedAt,
	}
}
