package link

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Link is a user's stored WHOOP connection. Token fields are secrets: they
// must never appear in logs or error messages.
type Link struct {
	UserID         uuid.UUID
	WhoopUserID    string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	Scopes         []string
	IsActive       bool
}

// Pending is a short-lived OAuth flow awaiting its callback.
type Pending struct {
	State        string
	UserID       uuid.UUID
	CodeVerifier string
	RedirectURI  string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Repo persists WHOOP links and pending OAuth flows.
type Repo interface {
	GetLink(ctx context.Context, userID uuid.UUID) (*Link, error)
	SaveLink(ctx context.Context, l *Link) error
	Deactivate(ctx context.Context, userID uuid.UUID) error

	InsertPending(ctx context.Context, p Pending) error
	// ConsumePending atomically deletes and returns the pending flow for a
	// state. Returns nil when no row matched, which makes the state
	// single-use under concurrent callbacks.
	ConsumePending(ctx context.Context, state string) (*Pending, error)
	DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error)
}

// PGRepo is the postgres-backed Repo.
type PGRepo struct {
	DB *pgxpool.Pool
}

func (r *PGRepo) GetLink(ctx context.Context, userID uuid.UUID) (*Link, error) {
	var l Link
	err := r.DB.QueryRow(ctx, `
		SELECT user_id, whoop_user_id, access_token, refresh_token, token_expires_at, scopes, is_active
		FROM whoop_link
		WHERE user_id = $1
	`, userID).Scan(&l.UserID, &l.WhoopUserID, &l.AccessToken, &l.RefreshToken, &l.TokenExpiresAt, &l.Scopes, &l.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *PGRepo) SaveLink(ctx context.Context, l *Link) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO whoop_link (user_id, whoop_user_id, access_token, refresh_token, token_expires_at, scopes, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			whoop_user_id    = EXCLUDED.whoop_user_id,
			access_token     = EXCLUDED.access_token,
			refresh_token    = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			scopes           = EXCLUDED.scopes,
			is_active        = TRUE,
			updated_at       = NOW()
	`, l.UserID, l.WhoopUserID, l.AccessToken, l.RefreshToken, l.TokenExpiresAt, l.Scopes)
	return err
}

func (r *PGRepo) Deactivate(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE whoop_link SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1
	`, userID)
	return err
}

func (r *PGRepo) InsertPending(ctx context.Context, p Pending) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO oauth_pending (state, user_id, code_verifier, redirect_uri, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.State, p.UserID, p.CodeVerifier, p.RedirectURI, p.CreatedAt, p.ExpiresAt)
	return err
}

func (r *PGRepo) ConsumePending(ctx context.Context, state string) (*Pending, error) {
	var p Pending
	err := r.DB.QueryRow(ctx, `
		DELETE FROM oauth_pending
		WHERE state = $1
		RETURNING state, user_id, code_verifier, redirect_uri, created_at, expires_at
	`, state).Scan(&p.State, &p.UserID, &p.CodeVerifier, &p.RedirectURI, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGRepo) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM oauth_pending WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
