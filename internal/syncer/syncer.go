// Package syncer is the decision engine: for each read or sync request it
// decides whether local data is fresh enough, and when it is not, runs the
// fetch → normalize → persist → log pipeline against the upstream.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vitalbridge/whoopsync/internal/link"
	"github.com/vitalbridge/whoopsync/internal/normalize"
	"github.com/vitalbridge/whoopsync/internal/store"
	"github.com/vitalbridge/whoopsync/internal/whoop"
)

const (
	// singlePageMax caps the page size for recovery, sleep and cycle, which
	// are fetched as one page per sync (at most one record per day exists).
	singlePageMax = 25

	// workoutSyncCap bounds one workout sync run for quota safety. Workouts
	// paginate the full window; hitting the cap marks the run partial.
	workoutSyncCap = 200
)

// ErrRepository signals the store was unavailable; the sync log is left
// untouched in that case.
var ErrRepository = errors.New("syncer: repository unavailable")

// TokenSource yields a valid upstream access token for a user.
// Implemented by *link.Store.
type TokenSource interface {
	GetValidToken(ctx context.Context, userID uuid.UUID) (string, error)
}

// Fetcher pulls one page of raw records. Implemented by *whoop.Client.
type Fetcher interface {
	FetchPage(ctx context.Context, dt whoop.DataType, token string, start, end time.Time, cursor string, limit int) (whoop.Page, error)
}

// Storage is the repository surface the orchestrator needs.
// Implemented by *store.Repository.
type Storage interface {
	UpsertRecoveries(ctx context.Context, recs []store.RecoveryRecord) (store.UpsertResult, error)
	UpsertSleeps(ctx context.Context, recs []store.SleepRecord) (store.UpsertResult, error)
	UpsertWorkouts(ctx context.Context, recs []store.WorkoutRecord) (store.UpsertResult, error)
	UpsertCycles(ctx context.Context, recs []store.CycleRecord) (store.UpsertResult, error)

	DailyRecoveries(ctx context.Context, userID uuid.UUID, date time.Time) ([]store.RecoveryRecord, error)
	DailySleeps(ctx context.Context, userID uuid.UUID, date time.Time) ([]store.SleepRecord, error)
	DailyWorkouts(ctx context.Context, userID uuid.UUID, date time.Time) ([]store.WorkoutRecord, error)
	DailyCycles(ctx context.Context, userID uuid.UUID, date time.Time) ([]store.CycleRecord, error)

	RecentRecoveries(ctx context.Context, userID uuid.UUID, limit int) ([]store.RecoveryRecord, error)
	RecentSleeps(ctx context.Context, userID uuid.UUID, limit int) ([]store.SleepRecord, error)
	RecentWorkouts(ctx context.Context, userID uuid.UUID, limit int) ([]store.WorkoutRecord, error)
	RecentCycles(ctx context.Context, userID uuid.UUID, limit int) ([]store.CycleRecord, error)

	GetSyncEntry(ctx context.Context, userID uuid.UUID, dataType string) (*store.SyncLogEntry, error)
	GetSyncEntries(ctx context.Context, userID uuid.UUID) ([]store.SyncLogEntry, error)
	UpdateSyncEntry(ctx context.Context, userID uuid.UUID, dataType string, delta int, status string, errMsg string) error
}

// Thresholds are the per-type freshness windows.
type Thresholds struct {
	Recovery time.Duration
	Sleep    time.Duration
	Cycle    time.Duration
	Workout  time.Duration
}

// For returns the threshold for a data type.
func (t Thresholds) For(dt whoop.DataType) time.Duration {
	switch dt {
	case whoop.TypeRecovery:
		return t.Recovery
	case whoop.TypeSleep:
		return t.Sleep
	case whoop.TypeCycle:
		return t.Cycle
	case whoop.TypeWorkout:
		return t.Workout
	}
	return t.Workout
}

// Window is an explicit sync time range, overriding the incremental default.
type Window struct {
	Start time.Time
	End   time.Time
}

// Meta describes where a read was served from.
type Meta struct {
	Source      string     `json:"source"` // "whoop_api", "cache", "stale_cache"
	RecordCount int        `json:"record_count"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	Warning     string     `json:"warning,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// DailySummary combines the four data types for one UTC calendar date.
type DailySummary struct {
	Date       string                `json:"date"`
	Recovery   *store.RecoveryRecord `json:"recovery"`
	Sleep      *store.SleepRecord    `json:"sleep"`
	Workouts   []store.WorkoutRecord `json:"workouts"`
	Cycle      *store.CycleRecord    `json:"cycle"`
	LastSync   *time.Time            `json:"last_sync,omitempty"`
	DataSource string                `json:"data_source"` // "database" or "whoop_api"
}

// SyncOutcome is the per-type result of an explicit sync request.
type SyncOutcome struct {
	Synced        map[string]int `json:"synced"`
	TotalAPICalls int            `json:"total_api_calls"`
}

// Orchestrator binds the token store, upstream client and repository.
type Orchestrator struct {
	tokens       TokenSource
	client       Fetcher
	store        Storage
	thresholds   Thresholds
	backfillDays int
	locks        *keyedLocks
}

// New builds an orchestrator.
func New(tokens TokenSource, client Fetcher, storage Storage, thresholds Thresholds, backfillDays int) *Orchestrator {
	return &Orchestrator{
		tokens:       tokens,
		client:       client,
		store:        storage,
		thresholds:   thresholds,
		backfillDays: backfillDays,
		locks:        newKeyedLocks(),
	}
}

// needsSync applies the freshness rule: sync iff no entry, last run failed,
// or the entry is older than the type's threshold.
func needsSync(entry *store.SyncLogEntry, threshold time.Duration, now time.Time) bool {
	if entry == nil {
		return true
	}
	if entry.SyncStatus == store.StatusFailed {
		return true
	}
	return now.Sub(entry.LastSyncAt) > threshold
}

// ensureFresh syncs one (user, type) if required, serialized under the keyed
// lock so concurrent readers do not both hit the upstream. Returns whether a
// sync actually ran, how many API calls it made, and the sync error if any.
func (o *Orchestrator) ensureFresh(ctx context.Context, userID uuid.UUID, dt whoop.DataType, force bool, window *Window) (bool, int, error) {
	entry, err := o.store.GetSyncEntry(ctx, userID, string(dt))
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrRepository, err)
	}
	if !force && !needsSync(entry, o.thresholds.For(dt), time.Now()) {
		return false, 0, nil
	}

	unlock := o.locks.Lock(userID.String() + "/" + string(dt))
	defer unlock()

	// Re-check under the lock: the first caller may have synced while this
	// one was waiting, in which case its result satisfies freshness.
	entry, err = o.store.GetSyncEntry(ctx, userID, string(dt))
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrRepository, err)
	}
	if !force && !needsSync(entry, o.thresholds.For(dt), time.Now()) {
		return false, 0, nil
	}

	_, calls, err := o.syncOne(ctx, userID, dt, entry, window)
	return true, calls, err
}

// syncOne runs the pipeline for one (user, type). Caller must hold the
// keyed lock. Returns records stored and upstream calls made.
func (o *Orchestrator) syncOne(ctx context.Context, userID uuid.UUID, dt whoop.DataType, entry *store.SyncLogEntry, window *Window) (int, int, error) {
	token, err := o.tokens.GetValidToken(ctx, userID)
	if err != nil {
		if errors.Is(err, link.ErrRevoked) {
			return 0, 0, link.ErrNotConnected
		}
		return 0, 0, err
	}

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -o.backfillDays)
	if entry != nil {
		start = entry.LastSyncAt
	}
	end := now
	if window != nil {
		start, end = window.Start, window.End
	}

	stored := 0
	calls := 0
	normDropped := 0
	upsertFailed := 0
	capped := false

	cursor := ""
	for {
		limit := pageLimit(dt, start, end)
		page, ferr := o.client.FetchPage(ctx, dt, token, start, end, cursor, limit)
		if ferr != nil {
			// Pages already persisted stay persisted.
			status := store.StatusFailed
			if calls > 0 {
				status = store.StatusPartial
			}
			if lerr := o.store.UpdateSyncEntry(ctx, userID, string(dt), stored, status, errMessage(ferr)); lerr != nil {
				log.Error().Err(lerr).Str("userId", userID.String()).Str("type", string(dt)).Msg("failed to update sync log")
			}
			return stored, calls, ferr
		}
		calls++

		n, dropped, uerr := o.persistBatch(ctx, userID, dt, page.Records)
		if uerr != nil {
			// Store down: fail the request without touching the log.
			return stored, calls, uerr
		}
		stored += n
		normDropped += dropped.normDropped
		upsertFailed += dropped.upsertFailed

		// Only workouts paginate: multiple records per day are expected
		// there. The other types are bounded by one page per sync.
		if dt != whoop.TypeWorkout || page.NextToken == "" {
			break
		}
		if stored >= workoutSyncCap {
			capped = true
			break
		}
		cursor = page.NextToken
	}

	status := store.StatusSuccess
	msg := ""
	switch {
	case capped:
		status = store.StatusPartial
		msg = fmt.Sprintf("workout cap of %d records reached; window not exhausted", workoutSyncCap)
	case normDropped > 0 || upsertFailed > 0:
		status = store.StatusPartial
		msg = fmt.Sprintf("%d records dropped in normalization, %d failed to persist", normDropped, upsertFailed)
	}

	if err := o.store.UpdateSyncEntry(ctx, userID, string(dt), stored, status, msg); err != nil {
		return stored, calls, fmt.Errorf("%w: %v", ErrRepository, err)
	}

	log.Info().
		Str("userId", userID.String()).
		Str("type", string(dt)).
		Int("stored", stored).
		Int("apiCalls", calls).
		Str("status", status).
		Msg("sync completed")

	return stored, calls, nil
}

type batchDrops struct {
	normDropped  int
	upsertFailed int
}

// persistBatch normalizes and upserts one page. A repository that stores
// nothing while records were offered is treated as unavailable.
func (o *Orchestrator) persistBatch(ctx context.Context, userID uuid.UUID, dt whoop.DataType, raws []json.RawMessage) (int, batchDrops, error) {
	if len(raws) == 0 {
		return 0, batchDrops{}, nil
	}

	var res store.UpsertResult
	var dropped int
	var err error

	switch dt {
	case whoop.TypeRecovery:
		recs, d := normalize.Recoveries(userID, raws)
		dropped = d
		if len(recs) > 0 {
			res, err = o.store.UpsertRecoveries(ctx, recs)
		}
	case whoop.TypeSleep:
		recs, d := normalize.Sleeps(userID, raws)
		dropped = d
		if len(recs) > 0 {
			res, err = o.store.UpsertSleeps(ctx, recs)
		}
	case whoop.TypeWorkout:
		recs, d := normalize.Workouts(userID, raws)
		dropped = d
		if len(recs) > 0 {
			res, err = o.store.UpsertWorkouts(ctx, recs)
		}
	case whoop.TypeCycle:
		recs, d := normalize.Cycles(userID, raws)
		dropped = d
		if len(recs) > 0 {
			res, err = o.store.UpsertCycles(ctx, recs)
		}
	}
	if err != nil {
		return 0, batchDrops{}, fmt.Errorf("%w: %v", ErrRepository, err)
	}
	if res.Failed > 0 && res.Stored == 0 {
		return 0, batchDrops{}, fmt.Errorf("%w: no records persisted", ErrRepository)
	}
	return res.Stored, batchDrops{normDropped: dropped, upsertFailed: res.Failed}, nil
}

// pageLimit sizes the single page for non-workout types: one record per day
// requested, capped at singlePageMax.
func pageLimit(dt whoop.DataType, start, end time.Time) int {
	if dt == whoop.TypeWorkout {
		return singlePageMax
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	if days > singlePageMax {
		return singlePageMax
	}
	return days
}

// errMessage renders an error for the sync log without leaking secrets:
// upstream errors carry no token material by construction.
func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
