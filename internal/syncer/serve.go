package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vitalbridge/whoopsync/internal/link"
	"github.com/vitalbridge/whoopsync/internal/store"
	"github.com/vitalbridge/whoopsync/internal/whoop"
)

// ServeByType returns recent records of one type, syncing first when the
// local data is stale. On a read-path upstream failure, stale cached rows
// are returned with a warning rather than failing the request; force
// refresh surfaces the error instead.
func (o *Orchestrator) ServeByType(ctx context.Context, userID uuid.UUID, dt whoop.DataType, limit int, force bool) (any, Meta, error) {
	synced, _, syncErr := o.ensureFresh(ctx, userID, dt, force, nil)

	if syncErr != nil {
		if errors.Is(syncErr, link.ErrNotConnected) || errors.Is(syncErr, ErrRepository) || force {
			return nil, Meta{}, syncErr
		}
		// Stale-cache fallback: the read still succeeds from local rows.
		records, n, rerr := o.readRecent(ctx, userID, dt, limit)
		if rerr != nil {
			return nil, Meta{}, syncErr
		}
		meta := Meta{
			Source:      "stale_cache",
			RecordCount: n,
			Warning:     "upstream sync failed; serving cached data",
			Error:       syncErr.Error(),
		}
		o.attachLastSync(ctx, userID, dt, &meta)
		return records, meta, nil
	}

	records, n, err := o.readRecent(ctx, userID, dt, limit)
	if err != nil {
		return nil, Meta{}, err
	}

	source := "cache"
	if synced {
		source = "whoop_api"
	}
	meta := Meta{Source: source, RecordCount: n}
	o.attachLastSync(ctx, userID, dt, &meta)
	return records, meta, nil
}

// ServeDaily assembles the four types for one UTC calendar date. Each type
// is freshened independently; a failure in one type never hides the others.
func (o *Orchestrator) ServeDaily(ctx context.Context, userID uuid.UUID, date time.Time) (DailySummary, error) {
	anySynced := false
	for _, dt := range whoop.AllTypes {
		synced, _, err := o.ensureFresh(ctx, userID, dt, false, nil)
		if err != nil {
			if errors.Is(err, link.ErrNotConnected) || errors.Is(err, ErrRepository) {
				return DailySummary{}, err
			}
			log.Warn().Err(err).Str("type", string(dt)).Msg("daily read continuing on cached data")
			continue
		}
		anySynced = anySynced || synced
	}

	recoveries, err := o.store.DailyRecoveries(ctx, userID, date)
	if err != nil {
		return DailySummary{}, err
	}
	sleeps, err := o.store.DailySleeps(ctx, userID, date)
	if err != nil {
		return DailySummary{}, err
	}
	workouts, err := o.store.DailyWorkouts(ctx, userID, date)
	if err != nil {
		return DailySummary{}, err
	}
	cycles, err := o.store.DailyCycles(ctx, userID, date)
	if err != nil {
		return DailySummary{}, err
	}

	sum := DailySummary{
		Date:       date.UTC().Format("2006-01-02"),
		Workouts:   workouts,
		DataSource: "database",
	}
	if anySynced {
		sum.DataSource = "whoop_api"
	}
	if len(recoveries) > 0 {
		sum.Recovery = &recoveries[0]
	}
	if len(sleeps) > 0 {
		sum.Sleep = &sleeps[0]
	}
	if len(cycles) > 0 {
		sum.Cycle = &cycles[0]
	}

	if entries, err := o.store.GetSyncEntries(ctx, userID); err == nil {
		for i := range entries {
			if sum.LastSync == nil || entries[i].LastSyncAt.After(*sum.LastSync) {
				t := entries[i].LastSyncAt
				sum.LastSync = &t
			}
		}
	}

	return sum, nil
}

// Sync forces a sync of the selected types within an optional window.
// Types default to all four. A failure in one type does not abort the rest.
func (o *Orchestrator) Sync(ctx context.Context, userID uuid.UUID, types []whoop.DataType, window *Window) (SyncOutcome, error) {
	if len(types) == 0 {
		types = whoop.AllTypes
	}

	out := SyncOutcome{Synced: make(map[string]int, len(types))}
	var firstErr error
	failures := 0

	for _, dt := range types {
		unlock := o.locks.Lock(userID.String() + "/" + string(dt))
		entry, err := o.store.GetSyncEntry(ctx, userID, string(dt))
		if err != nil {
			unlock()
			return out, err
		}
		if window != nil {
			entry = nil // explicit window overrides the incremental start
		}
		stored, calls, err := o.syncOne(ctx, userID, dt, entry, window)
		unlock()

		out.Synced[string(dt)] = stored
		out.TotalAPICalls += calls

		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, link.ErrNotConnected) {
				// No link means no type can sync.
				return out, err
			}
			log.Warn().Err(err).Str("type", string(dt)).Msg("sync failed for type, continuing")
		}
	}

	if failures == len(types) && firstErr != nil {
		return out, firstErr
	}
	return out, nil
}

// TypeStatus is one row of the sync status view.
type TypeStatus struct {
	LastSyncAt    *time.Time `json:"last_sync_at"`
	SyncStatus    string     `json:"sync_status"`
	RecordsSynced int64      `json:"records_synced"`
	NeedsSync     bool       `json:"needs_sync"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
}

// Status reports per-type sync state including whether the freshness rule
// would trigger a sync right now.
func (o *Orchestrator) Status(ctx context.Context, userID uuid.UUID) (map[string]TypeStatus, error) {
	entries, err := o.store.GetSyncEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]*store.SyncLogEntry, len(entries))
	for i := range entries {
		byType[entries[i].DataType] = &entries[i]
	}

	now := time.Now()
	out := make(map[string]TypeStatus, len(whoop.AllTypes))
	for _, dt := range whoop.AllTypes {
		entry := byType[string(dt)]
		st := TypeStatus{
			SyncStatus: "never",
			NeedsSync:  needsSync(entry, o.thresholds.For(dt), now),
		}
		if entry != nil {
			t := entry.LastSyncAt
			st.LastSyncAt = &t
			st.SyncStatus = entry.SyncStatus
			st.RecordsSynced = entry.RecordsSynced
			st.ErrorMessage = entry.ErrorMessage
		}
		out[string(dt)] = st
	}
	return out, nil
}

// readRecent dispatches the typed read and reports the row count.
func (o *Orchestrator) readRecent(ctx context.Context, userID uuid.UUID, dt whoop.DataType, limit int) (any, int, error) {
	switch dt {
	case whoop.TypeRecovery:
		recs, err := o.store.RecentRecoveries(ctx, userID, limit)
		return recs, len(recs), err
	case whoop.TypeSleep:
		recs, err := o.store.RecentSleeps(ctx, userID, limit)
		return recs, len(recs), err
	case whoop.TypeWorkout:
		recs, err := o.store.RecentWorkouts(ctx, userID, limit)
		return recs, len(recs), err
	case whoop.TypeCycle:
		recs, err := o.store.RecentCycles(ctx, userID, limit)
		return recs, len(recs), err
	}
	return nil, 0, nil
}

func (o *Orchestrator) attachLastSync(ctx context.Context, userID uuid.UUID, dt whoop.DataType, meta *Meta) {
	entry, err := o.store.GetSyncEntry(ctx, userID, string(dt))
	if err != nil || entry == nil {
		return
	}
	t := entry.LastSyncAt
	meta.LastSyncAt = &t
}
