package user

import (
	"testing"

	"github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("user_2abc", " Jane@Example.com ")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "user_2abc", u.ExternalID)
	assert.Equal(t, "jane@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestNewUser_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		externalID string
		email      string
		wantErr    error
	}{
		{"empty external id", "", "a@b.co", errors.ErrInvalidInput},
		{"missing email", "user_1", "", errors.ErrProfileIncomplete},
		{"malformed email", "user_1", "not-an-email", errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUser(tt.externalID, tt.email)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUser_Owns(t *testing.T) {
	u, _ := NewUser("user_1", "a@b.co")
	assert.True(t, u.Owns(u.ID))
	assert.False(t, u.Owns(uuid.New()))

	var nilUser *User
	assert.False(t, nilUser.Owns(uuid.New()))
}
