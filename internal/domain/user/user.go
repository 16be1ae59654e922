package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/google/uuid"
)

// User is the local record of a person authenticated by the identity provider.
type User struct {
	ID         uuid.UUID
	ExternalID string
	Email      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewUser(externalID, email string) (*User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, errors.NewValidationError("external_id", "cannot be empty")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.ErrProfileIncomplete
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.NewValidationError("email", "must be a valid address")
	}

	now := time.Now().UTC()
	return &User{
		ID:         uuid.New(),
		ExternalID: externalID,
		Email:      strings.ToLower(email),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Owns reports whether the given owner id belongs to this user.
func (u *User) Owns(ownerID uuid.UUID) bool {
	return u != nil && u.ID == ownerID
}
