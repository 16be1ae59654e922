package auth

import (
	"context"
	"strings"
)

// Session is the caller identity established by the identity provider.
// ExternalID is the provider's user id; Email is set when the token carried one.
type Session struct {
	ExternalID string
	Email      string
}

// Authenticated reports whether the session names a user.
func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.ExternalID) != ""
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by NewContext, or the zero Session.
func FromContext(ctx context.Context) Session {
	s, _ := ctx.Value(ctxKey{}).(Session)
	return s
}
