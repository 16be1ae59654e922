package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cassiomorais/fintrack/internal/domain/auth"
)

// SessionVerifier validates a raw session token.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (auth.Session, error)
}

// Authenticate attaches the caller's session to the request context when a
// valid token is present, either as a Bearer header or in the session cookie.
// It never rejects a request; handlers decide what an anonymous caller may do.
func Authenticate(verifier SessionVerifier, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := verifier.Verify(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), sess)))
		})
	}
}

// RequireSession rejects API requests that carry no authenticated session.
func RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.FromContext(r.Context()).Authenticated() {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "unauthenticated")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSessionRedirect sends anonymous browsers to the sign-in page.
func RequireSessionRedirect(signInURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.FromContext(r.Context()).Authenticated() {
				http.Redirect(w, r, signInURL, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionToken extracts the raw token, preferring the Authorization header.
func SessionToken(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
