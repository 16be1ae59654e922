package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/infrastructure/config"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	"github.com/cassiomorais/fintrack/pkg/retry"
	"github.com/sony/gobreaker/v2"
)

const breakerName = "identity-profile"

// ProfileClient reads user profiles from the identity provider's backend API.
type ProfileClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	retryCfg   retry.Config
	breaker    *gobreaker.CircuitBreaker[string]
}

func NewProfileClient(cfg config.IdentityConfig, metrics *observability.Metrics) *ProfileClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	threshold := uint32(cfg.CircuitBreakerThreshold)
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client mistakes say nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domainErrors.ErrProviderUnavailable)
		},
	}
	if metrics != nil {
		metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
		settings.OnStateChange = func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}

	return &ProfileClient{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg: retry.Config{
			MaxAttempts:  uint(attempts),
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     2 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

type profileResponse struct {
	ID                    string `json:"id"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddresses        []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// PrimaryEmail returns the user's primary email address. Transport failures
// and 5xx answers are retried and reported as ErrProviderUnavailable.
func (c *ProfileClient) PrimaryEmail(ctx context.Context, externalID string) (string, error) {
	email, err := c.breaker.Execute(func() (string, error) {
		return retry.DoWithResult(ctx, c.retryCfg, func() (string, error) {
			return c.fetchPrimaryEmail(ctx, externalID)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
	}
	return email, err
}

func (c *ProfileClient) fetchPrimaryEmail(ctx context.Context, externalID string) (string, error) {
	endpoint := c.baseURL + "/v1/users/" + url.PathEscape(externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", retry.Permanent(domainErrors.ErrUserNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: profile api returned %d", domainErrors.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", retry.Permanent(fmt.Errorf("profile api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode profile: %w", err))
	}

	for _, e := range profile.EmailAddresses {
		if e.ID == profile.PrimaryEmailAddressID && e.EmailAddress != "" {
			return e.EmailAddress, nil
		}
	}
	if len(profile.EmailAddresses) > 0 && profile.EmailAddresses[0].EmailAddress != "" {
		return profile.EmailAddresses[0].EmailAddress, nil
	}
	return "", retry.Permanent(domainErrors.ErrProfileIncomplete)
}
