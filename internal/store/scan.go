package store

import (
	"github.com/jackc/pgx/v5"
)

func scanRecoveries(rows pgx.Rows) ([]RecoveryRecord, error) {
	out := make([]RecoveryRecord, 0)
	for rows.Next() {
		var rec RecoveryRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CycleID, &rec.RecoveryScore,
			&rec.HRVRmssdMilli, &rec.RestingHeartRate, &rec.SpO2Percentage,
			&rec.SkinTempCelsius, &rec.CreatedAt, &rec.Raw); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSleeps(rows pgx.Rows) ([]SleepRecord, error) {
	out := make([]SleepRecord, 0)
	for rows.Next() {
		var rec SleepRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CycleID, &rec.TotalSleepTimeMilli,
			&rec.RemSleepTimeMilli, &rec.SlowWaveSleepTimeMilli, &rec.LightSleepTimeMilli,
			&rec.AwakeTimeMilli, &rec.PerformancePercentage, &rec.ConsistencyPercentage,
			&rec.EfficiencyPercentage, &rec.StartTime, &rec.EndTime, &rec.Raw); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanWorkouts(rows pgx.Rows) ([]WorkoutRecord, error) {
	out := make([]WorkoutRecord, 0)
	for rows.Next() {
		var rec WorkoutRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Strain, &rec.AverageHeartRate,
			&rec.MaxHeartRate, &rec.Kilojoule, &rec.DistanceMeter, &rec.SportID,
			&rec.SportName, &rec.StartTime, &rec.EndTime, &rec.DurationMilli, &rec.Raw); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCycles(rows pgx.Rows) ([]CycleRecord, error) {
	out := make([]CycleRecord, 0)
	for rows.Next() {
		var rec CycleRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DayStrain, &rec.Kilojoule,
			&rec.AverageHeartRate, &rec.MaxHeartRate, &rec.StartTime, &rec.EndTime, &rec.Raw); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
