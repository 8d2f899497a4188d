package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Repository owns all reads and writes of domain records. Every query is
// scoped by user_id; rows of one user are never visible to another.
type Repository struct {
	DB *pgxpool.Pool
}

// dayBounds returns the UTC [start, end) window for a calendar date.
func dayBounds(date time.Time) (time.Time, time.Time) {
	d := date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// countUpsert folds one statement outcome into res. A nil error with zero
// rows affected means the conflict guard blocked the write: the id already
// exists under a different user, so the record is counted as failed.
func countUpsert(res *UpsertResult, tag pgconn.CommandTag, err error, id, kind string) {
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to upsert " + kind + " record")
		res.Failed++
		return
	}
	if tag.RowsAffected() == 0 {
		log.Warn().Str("id", id).Msg(kind + " record id belongs to another user, not stored")
		res.Failed++
		return
	}
	res.Stored++
}

// UpsertRecoveries stores a batch, one record per statement so a bad record
// cannot roll back its siblings. Re-running the same batch is a no-op apart
// from synced_at.
func (r *Repository) UpsertRecoveries(ctx context.Context, recs []RecoveryRecord) (UpsertResult, error) {
	var res UpsertResult
	for _, rec := range recs {
		tag, err := r.DB.Exec(ctx, `
			INSERT INTO recovery_record (id, user_id, cycle_id, recovery_score, hrv_rmssd_milli,
				resting_heart_rate, spo2_percentage, skin_temp_celsius, created_at, raw, fetched_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				cycle_id           = EXCLUDED.cycle_id,
				recovery_score     = EXCLUDED.recovery_score,
				hrv_rmssd_milli    = EXCLUDED.hrv_rmssd_milli,
				resting_heart_rate = EXCLUDED.resting_heart_rate,
				spo2_percentage    = EXCLUDED.spo2_percentage,
				skin_temp_celsius  = EXCLUDED.skin_temp_celsius,
				raw                = EXCLUDED.raw,
				synced_at          = NOW()
			WHERE recovery_record.user_id = EXCLUDED.user_id
		`, rec.ID, rec.UserID, rec.CycleID, rec.RecoveryScore, rec.HRVRmssdMilli,
			rec.RestingHeartRate, rec.SpO2Percentage, rec.SkinTempCelsius, rec.CreatedAt, rec.Raw)
		countUpsert(&res, tag, err, rec.ID, "recovery")
	}
	return res, nil
}

func (r *Repository) UpsertSleeps(ctx context.Context, recs []SleepRecord) (UpsertResult, error) {
	var res UpsertResult
	for _, rec := range recs {
		tag, err := r.DB.Exec(ctx, `
			INSERT INTO sleep_record (id, user_id, cycle_id, total_sleep_time_milli, rem_sleep_time_milli,
				slow_wave_sleep_time_milli, light_sleep_time_milli, awake_time_milli,
				performance_percentage, consistency_percentage, efficiency_percentage,
				start_time, end_time, raw, fetched_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				cycle_id                   = EXCLUDED.cycle_id,
				total_sleep_time_milli     = EXCLUDED.total_sleep_time_milli,
				rem_sleep_time_milli       = EXCLUDED.rem_sleep_time_milli,
				slow_wave_sleep_time_milli = EXCLUDED.slow_wave_sleep_time_milli,
				light_sleep_time_milli     = EXCLUDED.light_sleep_time_milli,
				awake_time_milli           = EXCLUDED.awake_time_milli,
				performance_percentage     = EXCLUDED.performance_percentage,
				consistency_percentage     = EXCLUDED.consistency_percentage,
				efficiency_percentage      = EXCLUDED.efficiency_percentage,
				start_time                 = EXCLUDED.start_time,
				end_time                   = EXCLUDED.end_time,
				raw                        = EXCLUDED.raw,
				synced_at                  = NOW()
			WHERE sleep_record.user_id = EXCLUDED.user_id
		`, rec.ID, rec.UserID, rec.CycleID, rec.TotalSleepTimeMilli, rec.RemSleepTimeMilli,
			rec.SlowWaveSleepTimeMilli, rec.LightSleepTimeMilli, rec.AwakeTimeMilli,
			rec.PerformancePercentage, rec.ConsistencyPercentage, rec.EfficiencyPercentage,
			rec.StartTime, rec.EndTime, rec.Raw)
		countUpsert(&res, tag, err, rec.ID, "sleep")
	}
	return res, nil
}

func (r *Repository) UpsertWorkouts(ctx context.Context, recs []WorkoutRecord) (UpsertResult, error) {
	var res UpsertResult
	for _, rec := range recs {
		tag, err := r.DB.Exec(ctx, `
			INSERT INTO workout_record (id, user_id, strain, average_heart_rate, max_heart_rate,
				kilojoule, distance_meter, sport_id, sport_name, start_time, end_time, duration_milli,
				raw, fetched_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				strain             = EXCLUDED.strain,
				average_heart_rate = EXCLUDED.average_heart_rate,
				max_heart_rate     = EXCLUDED.max_heart_rate,
				kilojoule          = EXCLUDED.kilojoule,
				distance_meter     = EXCLUDED.distance_meter,
				sport_id           = EXCLUDED.sport_id,
				sport_name         = EXCLUDED.sport_name,
				start_time         = EXCLUDED.start_time,
				end_time           = EXCLUDED.end_time,
				duration_milli     = EXCLUDED.duration_milli,
				raw                = EXCLUDED.raw,
				synced_at          = NOW()
			WHERE workout_record.user_id = EXCLUDED.user_id
		`, rec.ID, rec.UserID, rec.Strain, rec.AverageHeartRate, rec.MaxHeartRate,
			rec.Kilojoule, rec.DistanceMeter, rec.SportID, rec.SportName,
			rec.StartTime, rec.EndTime, rec.DurationMilli, rec.Raw)
		countUpsert(&res, tag, err, rec.ID, "workout")
	}
	return res, nil
}

func (r *Repository) UpsertCycles(ctx context.Context, recs []CycleRecord) (UpsertResult, error) {
	var res UpsertResult
	for _, rec := range recs {
		tag, err := r.DB.Exec(ctx, `
			INSERT INTO cycle_record (id, user_id, day_strain, kilojoule, average_heart_rate,
				max_heart_rate, start_time, end_time, raw, fetched_at, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				day_strain         = EXCLUDED.day_strain,
				kilojoule          = EXCLUDED.kilojoule,
				average_heart_rate = EXCLUDED.average_heart_rate,
				max_heart_rate     = EXCLUDED.max_heart_rate,
				start_time         = EXCLUDED.start_time,
				end_time           = EXCLUDED.end_time,
				raw                = EXCLUDED.raw,
				synced_at          = NOW()
			WHERE cycle_record.user_id = EXCLUDED.user_id
		`, rec.ID, rec.UserID, rec.DayStrain, rec.Kilojoule, rec.AverageHeartRate,
			rec.MaxHeartRate, rec.StartTime, rec.EndTime, rec.Raw)
		countUpsert(&res, tag, err, rec.ID, "cycle")
	}
	return res, nil
}

// Reads. Daily bucketing is by UTC calendar date: recovery by created_at,
// sleep by end_time, workout and cycle by start_time.

func (r *Repository) DailyRecoveries(ctx context.Context, userID uuid.UUID, date time.Time) ([]RecoveryRecord, error) {
	start, end := dayBounds(date)
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, cycle_id, recovery_score, hrv_rmssd_milli, resting_heart_rate,
			spo2_percentage, skin_temp_celsius, created_at, raw
		FROM recovery_record
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecoveries(rows)
}

func (r *Repository) RecentRecoveries(ctx context.Context, userID uuid.UUID, limit int) ([]RecoveryRecord, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, cycle_id, recovery_score, hrv_rmssd_milli, resting_heart_rate,
			spo2_percentage, skin_temp_celsius, created_at, raw
		FROM recovery_record
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecoveries(rows)
}

func (r *Repository) DailySleeps(ctx context.Context, userID uuid.UUID, date time.Time) ([]SleepRecord, error) {
	start, end := dayBounds(date)
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, cycle_id, total_sleep_time_milli, rem_sleep_time_milli,
			slow_wave_sleep_time_milli, light_sleep_time_milli, awake_time_milli,
			performance_percentage, consistency_percentage, efficiency_percentage,
			start_time, end_time, raw
		FROM sleep_record
		WHERE user_id = $1 AND end_time >= $2 AND end_time < $3
		ORDER BY end_time DESC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSleeps(rows)
}

func (r *Repository) RecentSleeps(ctx context.Context, userID uuid.UUID, limit int) ([]SleepRecord, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, cycle_id, total_sleep_time_milli, rem_sleep_time_milli,
			slow_wave_sleep_time_milli, light_sleep_time_milli, awake_time_milli,
			performance_percentage, consistency_percentage, efficiency_percentage,
			start_time, end_time, raw
		FROM sleep_record
		WHERE user_id = $1
		ORDER BY end_time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSleeps(rows)
}

func (r *Repository) DailyWorkouts(ctx context.Context, userID uuid.UUID, date time.Time) ([]WorkoutRecord, error) {
	start, end := dayBounds(date)
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, strain, average_heart_rate, max_heart_rate, kilojoule,
			distance_meter, sport_id, sport_name, start_time, end_time, duration_milli, raw
		FROM workout_record
		WHERE user_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time DESC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkouts(rows)
}

func (r *Repository) RecentWorkouts(ctx context.Context, userID uuid.UUID, limit int) ([]WorkoutRecord, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, strain, average_heart_rate, max_heart_rate, kilojoule,
			distance_meter, sport_id, sport_name, start_time, end_time, duration_milli, raw
		FROM workout_record
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkouts(rows)
}

func (r *Repository) DailyCycles(ctx context.Context, userID uuid.UUID, date time.Time) ([]CycleRecord, error) {
	start, end := dayBounds(date)
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, day_strain, kilojoule, average_heart_rate, max_heart_rate,
			start_time, end_time, raw
		FROM cycle_record
		WHERE user_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time DESC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCycles(rows)
}

func (r *Repository) RecentCycles(ctx context.Context, userID uuid.UUID, limit int) ([]CycleRecord, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, day_strain, kilojoule, average_heart_rate, max_heart_rate,
			start_time, end_time, raw
		FROM cycle_record
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCycles(rows)
}
