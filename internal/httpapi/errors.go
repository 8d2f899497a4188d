package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/vitalbridge/whoopsync/internal/link"
	"github.com/vitalbridge/whoopsync/internal/syncer"
	"github.com/vitalbridge/whoopsync/internal/whoop"
)

// errBody is the error envelope on every non-2xx response.
type errBody struct {
	Error errDetail `json:"error"`
}

type errDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes the error envelope with the given status.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	log.Ctx(r.Context()).Warn().
		Int("status", status).
		Str("code", code).
		Str("path", r.URL.Path).
		Msg(message)
	writeJSON(w, status, errBody{Error: errDetail{Code: code, Message: message}})
}

// writeDomainError maps service errors onto status codes. Messages never
// include token material; upstream errors carry none by construction.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *whoop.RateLimitedError
	var te *whoop.TransientError
	var pe *whoop.PermanentError

	switch {
	case errors.Is(err, link.ErrNotConnected):
		writeError(w, r, http.StatusForbidden, "not_connected", "no active WHOOP connection for this user")
	case errors.Is(err, link.ErrInvalidState):
		writeError(w, r, http.StatusBadRequest, "invalid_state", "oauth state is unknown, expired, or already used")
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "upstream quota exhausted, retry later")
	case errors.Is(err, whoop.ErrUnauthorized), errors.Is(err, link.ErrRefreshFailed):
		writeError(w, r, http.StatusBadGateway, "upstream_error", "upstream rejected our credentials")
	case errors.As(err, &te):
		writeError(w, r, http.StatusBadGateway, "upstream_error", "upstream is unavailable")
	case errors.As(err, &pe):
		writeError(w, r, http.StatusBadGateway, "upstream_error", "upstream rejected the request with status "+strconv.Itoa(pe.Status))
	case errors.Is(err, syncer.ErrRepository):
		writeError(w, r, http.StatusServiceUnavailable, "storage_unavailable", "storage is temporarily unavailable")
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
