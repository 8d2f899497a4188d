package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vitalbridge/whoopsync/internal/auth"
)

// initiateReq is the request body for POST /oauth/initiate. Both fields are
// optional; the client config supplies defaults.
type initiateReq struct {
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes"`
}

// initiateResp carries the upstream authorization URL the caller should
// send the user's browser to.
type initiateResp struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// OAuthInitiate starts the connection handshake for the authenticated user.
func (s *Server) OAuthInitiate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req initiateReq
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}

	authURL, state, err := s.Flow.Begin(r.Context(), userID, req.RedirectURI, req.Scopes)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, initiateResp{AuthorizationURL: authURL, State: state})
}

// OAuthCallback completes the handshake. Unauthenticated: the state value
// binds the callback to the user who initiated the flow.
func (s *Server) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if upErr := q.Get("error"); upErr != "" {
		log.Ctx(r.Context()).Warn().Str("error", upErr).Msg("oauth callback carried an upstream error")
		writeError(w, r, http.StatusBadRequest, "authorization_denied", "authorization was not granted: "+upErr)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "code and state query parameters are required")
		return
	}

	if err := s.Flow.Complete(r.Context(), code, state); err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DisconnectConnection deactivates the authenticated user's WHOOP link.
func (s *Server) DisconnectConnection(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	if err := s.Links.Disconnect(r.Context(), userID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	log.Ctx(r.Context()).Info().Str("userId", userID.String()).Msg("whoop connection disconnected")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
