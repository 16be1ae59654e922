package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-local-development-secret-of-32+chars"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier(testSecret, "")

	t.Run("valid token", func(t *testing.T) {
		token := signHS256(t, jwt.MapClaims{
			"sub":   "user_123",
			"email": " Jane@Example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		s, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user_123", s.ExternalID)
		assert.Equal(t, "jane@example.com", s.Email)
	})

	t.Run("expired", func(t *testing.T) {
		token := signHS256(t, jwt.MapClaims{
			"sub": "user_123",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signHS256(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user_123",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("another-secret-that-is-long-enough!!"))
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	})
}

func TestHMACVerifier_Issuer(t *testing.T) {
	v := NewHMACVerifier(testSecret, "https://clerk.fintrack.dev")
	token := signHS256(t, jwt.MapClaims{
		"sub": "user_1",
		"iss": "https://evil.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
}

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits int32
	srv := jwksServer(t, "kid-1", &key.PublicKey, &hits)
	v := NewJWKSVerifier(srv.URL, "", srv.Client())

	sign := func(kid string, claims jwt.MapClaims) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = kid
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	token := sign("kid-1", jwt.MapClaims{"sub": "user_rs", "exp": time.Now().Add(time.Hour).Unix()})

	s, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user_rs", s.ExternalID)
	assert.Empty(t, s.Email)

	_, err = v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "keys are cached")

	_, err = v.Verify(context.Background(), sign("kid-unknown", jwt.MapClaims{"sub": "x", "exp": time.Now().Add(time.Hour).Unix()}))
	assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)

	hs := signHS256(t, jwt.MapClaims{"sub": "user_rs", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(context.Background(), hs)
	assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated, "HS256 is not accepted by the JWKS verifier")
}

func TestJWKSVerifier_UnknownKidDoesNotRefetch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits int32
	srv := jwksServer(t, "kid-1", &key.PublicKey, &hits)
	v := NewJWKSVerifier(srv.URL, "", srv.Client())

	sign := func(kid string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user_rs", "exp": time.Now().Add(time.Hour).Unix()})
		tok.Header["kid"] = kid
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	for i := 0; i < 20; i++ {
		_, err := v.Verify(context.Background(), sign("kid-unknown"))
		assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "unknown kids share one fetch per interval")

	_, err = v.Verify(context.Background(), sign("kid-1"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	v.minRefresh = 0
	_, err = v.Verify(context.Background(), sign("kid-unknown"))
	assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "a fetch is allowed again once the interval has passed")
}

func TestJWKSVerifier_FailedFetchIsThrottled(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user_rs", "exp": time.Now().Add(time.Hour).Unix()})
	tok.Header["kid"] = "kid-1"
	token, err := tok.SignedString(key)
	require.NoError(t, err)

	v := NewJWKSVerifier(srv.URL, "", srv.Client())
	for i := 0; i < 5; i++ {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestNewVerifier(t *testing.T) {
	assert.IsType(t, &JWKSVerifier{}, NewVerifier(config.IdentityConfig{JWKSURL: "https://example.com/jwks"}))
	assert.IsType(t, &HMACVerifier{}, NewVerifier(config.IdentityConfig{JWTSecret: testSecret}))
}

func TestParseRSAPublicKey_Invalid(t *testing.T) {
	_, err := parseRSAPublicKey("!!", "AQAB")
	assert.Error(t, err)
	_, err = parseRSAPublicKey("AQAB", "")
	assert.Error(t, err)
}
