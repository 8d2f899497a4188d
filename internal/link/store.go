package link

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ExpirySkew is how long before nominal expiry a token is treated as
// expired. Covers clock drift and in-flight request latency.
const ExpirySkew = 60 * time.Second

// Store owns the per-user token lifecycle: durable storage, expiry checks,
// and refresh with rotation. Concurrent refreshes for one user coalesce into
// a single token-endpoint call, since rotation invalidates the prior refresh
// token.
type Store struct {
	repo  Repo
	oauth *oauth2.Config
	group singleflight.Group
}

// NewStore builds a token store over the given repo and OAuth client config.
func NewStore(repo Repo, oauth *oauth2.Config) *Store {
	return &Store{repo: repo, oauth: oauth}
}

// GetValidToken returns an access token for the user, refreshing first when
// the stored one expires within ExpirySkew.
func (s *Store) GetValidToken(ctx context.Context, userID uuid.UUID) (string, error) {
	l, err := s.repo.GetLink(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading whoop link: %w", err)
	}
	if l == nil || !l.IsActive {
		return "", ErrNotConnected
	}

	if time.Until(l.TokenExpiresAt) > ExpirySkew {
		return l.AccessToken, nil
	}

	v, err, _ := s.group.Do(userID.String(), func() (any, error) {
		return s.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refresh performs the refresh-token grant and persists the rotated pair.
// Runs inside singleflight, so at most one refresh per user is in flight.
func (s *Store) refresh(ctx context.Context, userID uuid.UUID) (string, error) {
	// Re-read: another caller may have completed a refresh while this one
	// was waiting on the flight group.
	l, err := s.repo.GetLink(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("loading whoop link: %w", err)
	}
	if l == nil || !l.IsActive {
		return "", ErrNotConnected
	}
	if time.Until(l.TokenExpiresAt) > ExpirySkew {
		return l.AccessToken, nil
	}

	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: l.RefreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil &&
			(rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized) {
			// Invalid grant: the refresh token is gone for good.
			log.Warn().Str("userId", userID.String()).Msg("refresh grant rejected, deactivating whoop link")
			if derr := s.repo.Deactivate(ctx, userID); derr != nil {
				log.Error().Err(derr).Str("userId", userID.String()).Msg("failed to deactivate whoop link")
			}
			return "", ErrRevoked
		}
		log.Warn().Str("userId", userID.String()).Msg("token refresh failed transiently")
		return "", ErrRefreshFailed
	}

	l.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		l.RefreshToken = tok.RefreshToken
	}
	l.TokenExpiresAt = tok.Expiry

	if err := s.repo.SaveLink(ctx, l); err != nil {
		return "", fmt.Errorf("persisting rotated tokens: %w", err)
	}

	log.Info().
		Str("userId", userID.String()).
		Time("expiresAt", l.TokenExpiresAt).
		Msg("whoop tokens refreshed")

	return l.AccessToken, nil
}

// StoreTokens persists a fresh token set, activating the link.
func (s *Store) StoreTokens(ctx context.Context, userID uuid.UUID, whoopUserID, access, refresh string, expiresAt time.Time, scopes []string) error {
	return s.repo.SaveLink(ctx, &Link{
		UserID:         userID,
		WhoopUserID:    whoopUserID,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: expiresAt,
		Scopes:         scopes,
		IsActive:       true,
	})
}

// Disconnect marks the link inactive. The row is kept for audit.
func (s *Store) Disconnect(ctx context.Context, userID uuid.UUID) error {
	return s.repo.Deactivate(ctx, userID)
}
