package link

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/vitalbridge/whoopsync/internal/whoop"
)

// ProfileFetcher learns the upstream account id after a code exchange.
// Implemented by *whoop.Client.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (whoop.Profile, error)
}

// Flow drives the authorization-code-with-PKCE handshake. Each flow is bound
// to its initiating user through the persisted state.
type Flow struct {
	repo     Repo
	store    *Store
	oauth    *oauth2.Config
	profiles ProfileFetcher
	stateTTL time.Duration
}

// NewFlow builds the OAuth orchestrator.
func NewFlow(repo Repo, store *Store, oauth *oauth2.Config, profiles ProfileFetcher, stateTTL time.Duration) *Flow {
	return &Flow{repo: repo, store: store, oauth: oauth, profiles: profiles, stateTTL: stateTTL}
}

// Begin starts a flow for the user and returns the upstream authorization
// URL plus the state binding the eventual callback to this user.
// redirectURI and scopes default from the client config when empty.
func (f *Flow) Begin(ctx context.Context, userID uuid.UUID, redirectURI string, scopes []string) (authURL, state string, err error) {
	state, err = newState()
	if err != nil {
		return "", "", fmt.Errorf("generating state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	if redirectURI == "" {
		redirectURI = f.oauth.RedirectURL
	}
	if len(scopes) == 0 {
		scopes = f.oauth.Scopes
	}

	now := time.Now().UTC()
	if err := f.repo.InsertPending(ctx, Pending{
		State:        state,
		UserID:       userID,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
		CreatedAt:    now,
		ExpiresAt:    now.Add(f.stateTTL),
	}); err != nil {
		return "", "", fmt.Errorf("persisting pending flow: %w", err)
	}

	cfg := *f.oauth
	cfg.RedirectURL = redirectURI
	cfg.Scopes = scopes
	authURL = cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	log.Info().Str("userId", userID.String()).Msg("oauth flow initiated")
	return authURL, state, nil
}

// Complete consumes the state, exchanges the code with the stored PKCE
// verifier, learns the upstream account id, and persists the tokens. The
// delete-on-consume makes each state single-use: of two concurrent callbacks
// with the same state, exactly one sees the pending row.
func (f *Flow) Complete(ctx context.Context, code, state string) error {
	p, err := f.repo.ConsumePending(ctx, state)
	if err != nil {
		return fmt.Errorf("consuming pending flow: %w", err)
	}
	if p == nil {
		return ErrInvalidState
	}
	if time.Now().After(p.ExpiresAt) {
		log.Warn().Str("userId", p.UserID.String()).Msg("oauth callback for expired state")
		return ErrInvalidState
	}

	cfg := *f.oauth
	cfg.RedirectURL = p.RedirectURI
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(p.CodeVerifier))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < 500 {
			// Upstream rejected the code or verifier outright.
			log.Warn().Str("userId", p.UserID.String()).Msg("authorization code exchange rejected")
			return fmt.Errorf("exchanging authorization code: %w", ErrInvalidState)
		}
		// A token-endpoint outage or transport failure is not the caller's
		// fault; the state is already spent, so the flow must be restarted.
		return &whoop.TransientError{Cause: fmt.Errorf("exchanging authorization code: %w", err)}
	}

	profile, err := f.profiles.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("fetching whoop profile: %w", err)
	}

	scopes := f.oauth.Scopes
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		scopes = strings.Fields(s)
	}

	if err := f.store.StoreTokens(ctx, p.UserID, fmt.Sprintf("%d", profile.UserID),
		tok.AccessToken, tok.RefreshToken, tok.Expiry, scopes); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}

	log.Info().
		Str("userId", p.UserID.String()).
		Time("expiresAt", tok.Expiry).
		Msg("whoop connection established")
	return nil
}

// SweepPending deletes expired pending flows. Run on a ticker from main.
func (f *Flow) SweepPending(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := f.repo.DeleteExpiredPending(ctx, time.Now())
			if err != nil {
				log.Error().Err(err).Msg("pending oauth sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("swept expired oauth states")
			}
		}
	}
}

// newState returns 32 bytes of entropy, base64url-encoded.
func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
