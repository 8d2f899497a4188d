package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vitalbridge/whoopsync/internal/auth"
	"github.com/vitalbridge/whoopsync/internal/syncer"
	"github.com/vitalbridge/whoopsync/internal/whoop"
)

// OAuthFlow is the connection handshake surface. Implemented by *link.Flow.
type OAuthFlow interface {
	Begin(ctx context.Context, userID uuid.UUID, redirectURI string, scopes []string) (authURL, state string, err error)
	Complete(ctx context.Context, code, state string) error
}

// Connection manages the stored link. Implemented by *link.Store.
type Connection interface {
	Disconnect(ctx context.Context, userID uuid.UUID) error
}

// SyncService is the data-serving surface. Implemented by *syncer.Orchestrator.
type SyncService interface {
	ServeByType(ctx context.Context, userID uuid.UUID, dt whoop.DataType, limit int, force bool) (any, syncer.Meta, error)
	ServeDaily(ctx context.Context, userID uuid.UUID, date time.Time) (syncer.DailySummary, error)
	Sync(ctx context.Context, userID uuid.UUID, types []whoop.DataType, window *syncer.Window) (syncer.SyncOutcome, error)
	Status(ctx context.Context, userID uuid.UUID) (map[string]syncer.TypeStatus, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	Flow   OAuthFlow
	Links  Connection
	Syncer SyncService
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// parseLimit parses a limit query param with default and max.
func parseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Routes creates the HTTP router.
func (s *Server) Routes(jwt auth.JWTCfg, rl RateLimitInfo) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorrelationMiddleware)

	// Unauthenticated: health and the OAuth callback, which is bound to its
	// user through the persisted state rather than a bearer token.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})
	r.Get("/oauth/callback", s.OAuthCallback)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwt))
		r.Use(RateLimitMiddleware(rl))

		r.Post("/oauth/initiate", s.OAuthInitiate)
		r.Delete("/oauth/connection", s.DisconnectConnection)

		r.Get("/daily/{date}", s.GetDaily)
		r.Get("/data/{type}", s.GetData)

		r.Post("/sync", s.PostSync)
		r.Get("/sync/status", s.GetSyncStatus)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}
