package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitalbridge/whoopsync/internal/auth"
	"github.com/vitalbridge/whoopsync/internal/syncer"
	"github.com/vitalbridge/whoopsync/internal/whoop"
)

const (
	defaultDataLimit = 10
	maxDataLimit     = 50
)

// GetDaily serves the combined summary for one UTC calendar date.
func (s *Server) GetDaily(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	date, err := time.ParseInLocation("2006-01-02", chi.URLParam(r, "date"), time.UTC)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	sum, err := s.Syncer.ServeDaily(r.Context(), userID, date)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

// dataResp wraps one type's records with serving metadata.
type dataResp struct {
	Status   string      `json:"status"`
	Data     any         `json:"data"`
	Metadata syncer.Meta `json:"metadata"`
}

// GetData serves recent records of one type, syncing first when stale.
func (s *Server) GetData(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	dt, err := whoop.ParseDataType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_type", "type must be one of recovery, sleep, workout, cycle")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), defaultDataLimit, maxDataLimit)

	force := false
	if v := r.URL.Query().Get("force_refresh"); v != "" {
		force, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "force_refresh must be a boolean")
			return
		}
	}

	records, meta, err := s.Syncer.ServeByType(r.Context(), userID, dt, limit, force)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResp{Status: "ok", Data: records, Metadata: meta})
}

// syncReq is the request body for POST /sync. Types defaults to all four;
// date_range overrides the incremental window.
type syncReq struct {
	Types     []string `json:"types"`
	DateRange *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"date_range"`
}

// PostSync forces a sync of the selected types.
func (s *Server) PostSync(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req syncReq
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}

	types := make([]whoop.DataType, 0, len(req.Types))
	for _, t := range req.Types {
		dt, err := whoop.ParseDataType(t)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_type", "unknown data type "+strconv.Quote(t))
			return
		}
		types = append(types, dt)
	}

	var window *syncer.Window
	if req.DateRange != nil {
		start, err := parseTimeOrDate(req.DateRange.Start)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "date_range.start must be RFC 3339 or YYYY-MM-DD")
			return
		}
		end, err := parseTimeOrDate(req.DateRange.End)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "date_range.end must be RFC 3339 or YYYY-MM-DD")
			return
		}
		if !end.After(start) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "date_range.end must be after date_range.start")
			return
		}
		window = &syncer.Window{Start: start, End: end}
	}

	out, err := s.Syncer.Sync(r.Context(), userID, types, window)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// GetSyncStatus reports per-type sync state.
func (s *Server) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	status, err := s.Syncer.Status(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// parseTimeOrDate accepts RFC 3339 timestamps or bare dates, both UTC.
func parseTimeOrDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
