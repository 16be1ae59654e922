package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/auth"
	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a session token into a Session.
type Verifier interface {
	Verify(ctx context.Context, token string) (auth.Session, error)
}

// NewVerifier picks the JWKS verifier when a JWKS URL is configured and
// falls back to the shared-secret verifier otherwise.
func NewVerifier(cfg config.IdentityConfig) Verifier {
	if cfg.JWKSURL != "" {
		return NewJWKSVerifier(cfg.JWKSURL, cfg.Issuer, nil)
	}
	return NewHMACVerifier(cfg.JWTSecret, cfg.Issuer)
}

// HMACVerifier accepts HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (auth.Session, error) {
	parser := newParser([]string{"HS256"}, v.issuer)
	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return auth.Session{}, fmt.Errorf("%w: %v", domainErrors.ErrUnauthenticated, err)
	}
	return sessionFromClaims(claims)
}

// JWKSVerifier accepts RS256 tokens signed by any key published at the JWKS
// endpoint. Keys are cached for ten minutes and refetched on an unknown kid.
type JWKSVerifier struct {
	jwksURL    string
	issuer     string
	httpClient *http.Client
	cacheTTL   time.Duration
	// minRefresh is the shortest gap between two fetches. The kid that
	// triggers a fetch comes from an unverified header.
	minRefresh time.Duration

	refreshMu   sync.Mutex
	lastAttempt time.Time

	mu       sync.RWMutex
	expires  time.Time
	keyByKID map[string]*rsa.PublicKey
}

func NewJWKSVerifier(jwksURL, issuer string, httpClient *http.Client) *JWKSVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &JWKSVerifier{
		jwksURL:    strings.TrimSpace(jwksURL),
		issuer:     issuer,
		httpClient: httpClient,
		cacheTTL:   10 * time.Minute,
		minRefresh: 30 * time.Second,
		keyByKID:   map[string]*rsa.PublicKey{},
	}
}

func (v *JWKSVerifier) Verify(ctx context.Context, token string) (auth.Session, error) {
	parser := newParser([]string{"RS256"}, v.issuer)
	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid in token")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil || !parsed.Valid {
		return auth.Session{}, fmt.Errorf("%w: %v", domainErrors.ErrUnauthenticated, err)
	}
	return sessionFromClaims(claims)
}

func (v *JWKSVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key := v.cachedKey(kid); key != nil {
		return key, nil
	}
	if err := v.refreshIfStale(ctx); err != nil {
		return nil, err
	}
	if key := v.cachedKey(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("key not found for kid %s", kid)
}

func (v *JWKSVerifier) cachedKey(kid string) *rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if time.Now().After(v.expires) {
		return nil
	}
	return v.keyByKID[kid]
}

// refreshIfStale fetches the key set unless a fetch was attempted within
// minRefresh. Inside that window a still valid key set is kept as is and an
// expired one is reported as unavailable.
func (v *JWKSVerifier) refreshIfStale(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	if time.Since(v.lastAttempt) < v.minRefresh {
		v.mu.RLock()
		valid := time.Now().Before(v.expires)
		v.mu.RUnlock()
		if valid {
			return nil
		}
		return errors.New("jwks unavailable, refresh throttled")
	}
	v.lastAttempt = time.Now()
	return v.refresh(ctx)
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("no usable RSA keys in JWKS")
	}

	v.mu.Lock()
	v.keyByKID = keys
	v.expires = time.Now().Add(v.cacheTTL)
	v.mu.Unlock()
	return nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = exp<<8 | uint64(b)
	}
	if exp == 0 || len(nb) == 0 {
		return nil, errors.New("invalid RSA key")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}

func newParser(methods []string, issuer string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return jwt.NewParser(opts...)
}

func sessionFromClaims(claims jwt.MapClaims) (auth.Session, error) {
	sub, _ := claims.GetSubject()
	if strings.TrimSpace(sub) == "" {
		return auth.Session{}, fmt.Errorf("%w: subject claim missing", domainErrors.ErrUnauthenticated)
	}
	return auth.Session{ExternalID: sub, Email: emailClaim(claims)}, nil
}

func emailClaim(claims jwt.MapClaims) string {
	for _, key := range []string{"email", "email_address", "primary_email_address"} {
		if v, ok := claims[key].(string); ok {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				return v
			}
		}
	}
	return ""
}
