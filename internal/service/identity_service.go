package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/fintrack/internal/domain/auth"
	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/domain/user"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ProfileFetcher looks up profile data held by the identity provider.
type ProfileFetcher interface {
	PrimaryEmail(ctx context.Context, externalID string) (string, error)
}

// IdentityService maps provider sessions to local users.
type IdentityService struct {
	userRepo user.Repository
	profiles ProfileFetcher
	metrics  *observability.Metrics
	logger   zerolog.Logger

	inflight singleflight.Group
}

func NewIdentityService(
	userRepo user.Repository,
	profiles ProfileFetcher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *IdentityService {
	return &IdentityService{
		userRepo: userRepo,
		profiles: profiles,
		metrics:  metrics,
		logger:   observability.Component(logger, "identity"),
	}
}

// Lookup returns the local user for the session without creating one.
func (s *IdentityService) Lookup(ctx context.Context, sess auth.Session) (*user.User, error) {
	if !sess.Authenticated() {
		return nil, domainErrors.ErrUnauthenticated
	}
	u, err := s.userRepo.GetByExternalID(ctx, sess.ExternalID)
	if err != nil {
		s.metrics.IdentityLookups.WithLabelValues("lookup", resultLabel(err)).Inc()
		return nil, err
	}
	s.metrics.IdentityLookups.WithLabelValues("lookup", "found").Inc()
	return u, nil
}

// GetOrCreate returns the local user for the session, creating it on first
// sight. The email comes from the session when present, otherwise from the
// identity provider's profile API.
func (s *IdentityService) GetOrCreate(ctx context.Context, sess auth.Session) (*user.User, error) {
	if !sess.Authenticated() {
		return nil, domainErrors.ErrUnauthenticated
	}

	u, err := s.userRepo.GetByExternalID(ctx, sess.ExternalID)
	if err == nil {
		s.metrics.IdentityLookups.WithLabelValues("get_or_create", "found").Inc()
		return u, nil
	}
	if !errors.Is(err, domainErrors.ErrUserNotFound) {
		return nil, err
	}

	// The flight is shared by every caller for this id, so it must not die
	// with whichever request happened to start it.
	v, err, _ := s.inflight.Do(sess.ExternalID, func() (any, error) {
		return s.provision(context.WithoutCancel(ctx), sess)
	})
	if err != nil {
		s.metrics.IdentityLookups.WithLabelValues("get_or_create", resultLabel(err)).Inc()
		return nil, err
	}
	s.metrics.IdentityLookups.WithLabelValues("get_or_create", "created").Inc()
	return v.(*user.User), nil
}

func (s *IdentityService) provision(ctx context.Context, sess auth.Session) (*user.User, error) {
	email := sess.Email
	if email == "" {
		fetched, err := s.profiles.PrimaryEmail(ctx, sess.ExternalID)
		if err != nil {
			if errors.Is(err, domainErrors.ErrProfileIncomplete) || errors.Is(err, domainErrors.ErrUserNotFound) {
				return nil, err
			}
			if errors.Is(err, domainErrors.ErrProviderUnavailable) {
				return nil, err
			}
			return nil, domainErrors.NewDomainError("provider_error", "could not read identity profile",
				fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err))
		}
		email = fetched
	}

	candidate, err := user.NewUser(sess.ExternalID, email)
	if err != nil {
		return nil, err
	}

	created, err := s.userRepo.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		s.metrics.UsersProvisioned.Inc()
		s.logger.Info().
			Str("user_id", candidate.ID.String()).
			Str("external_id", sess.ExternalID).
			Msg("Provisioned user")
	}

	// Re-read so that a row inserted concurrently by another process wins.
	return s.userRepo.GetByExternalID(ctx, sess.ExternalID)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "provider_error"
	default:
		return "error"
	}
}
