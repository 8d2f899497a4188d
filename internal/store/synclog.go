package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetSyncEntry returns the sync log row for (user, data type), or nil when
// the type has never been synced.
func (r *Repository) GetSyncEntry(ctx context.Context, userID uuid.UUID, dataType string) (*SyncLogEntry, error) {
	var e SyncLogEntry
	err := r.DB.QueryRow(ctx, `
		SELECT user_id, data_type, last_sync_at, sync_status, records_synced, error_message
		FROM sync_log
		WHERE user_id = $1 AND data_type = $2
	`, userID, dataType).Scan(&e.UserID, &e.DataType, &e.LastSyncAt, &e.SyncStatus, &e.RecordsSynced, &e.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// GetSyncEntries returns every sync log row for a user, for the status view.
func (r *Repository) GetSyncEntries(ctx context.Context, userID uuid.UUID) ([]SyncLogEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT user_id, data_type, last_sync_at, sync_status, records_synced, error_message
		FROM sync_log
		WHERE user_id = $1
		ORDER BY data_type
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SyncLogEntry, 0, 4)
	for rows.Next() {
		var e SyncLogEntry
		if err := rows.Scan(&e.UserID, &e.DataType, &e.LastSyncAt, &e.SyncStatus, &e.RecordsSynced, &e.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateSyncEntry upserts the log row, advancing last_sync_at to now and
// adding delta to the cumulative record counter. last_sync_at only moves
// forward: each write sets it to the current clock.
func (r *Repository) UpdateSyncEntry(ctx context.Context, userID uuid.UUID, dataType string, delta int, status string, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO sync_log (user_id, data_type, last_sync_at, sync_status, records_synced, error_message)
		VALUES ($1, $2, NOW(), $3, $4, $5)
		ON CONFLICT (user_id, data_type) DO UPDATE SET
			last_sync_at   = NOW(),
			sync_status    = EXCLUDED.sync_status,
			records_synced = sync_log.records_synced + EXCLUDED.records_synced,
			error_message  = EXCLUDED.error_message
	`, userID, dataType, status, int64(delta), msg)
	return err
}
