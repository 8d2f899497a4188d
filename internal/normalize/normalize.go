// Package normalize converts raw upstream payloads into typed domain
// records. Invalid records are dropped and counted, never propagated: a
// malformed record upstream must not poison the rest of a sync run.
package normalize

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vitalbridge/whoopsync/internal/store"
	"github.com/vitalbridge/whoopsync/internal/whoop"
)

var (
	errMissingID  = errors.New("normalize: missing primary key")
	errTimeOrder  = errors.New("normalize: end_time not after start_time")
	errScoreRange = errors.New("normalize: score out of range")
)

// Recovery maps one raw recovery payload. The primary key is the upstream
// sleep_id; the recovery resource has no id of its own.
func Recovery(userID uuid.UUID, raw json.RawMessage) (store.RecoveryRecord, error) {
	var w whoop.Recovery
	if err := json.Unmarshal(raw, &w); err != nil {
		return store.RecoveryRecord{}, err
	}
	if w.SleepID == "" {
		return store.RecoveryRecord{}, errMissingID
	}

	rec := store.RecoveryRecord{
		ID:        w.SleepID,
		UserID:    userID,
		CycleID:   w.CycleID,
		CreatedAt: w.CreatedAt,
		Raw:       raw,
	}
	if s := w.Score; s != nil {
		if s.RecoveryScore < 0 || s.RecoveryScore > 100 {
			return store.RecoveryRecord{}, errScoreRange
		}
		if s.HRVRmssdMilli < 0 {
			return store.RecoveryRecord{}, errScoreRange
		}
		rec.RecoveryScore = f64(s.RecoveryScore)
		rec.HRVRmssdMilli = f64(s.HRVRmssdMilli)
		rec.RestingHeartRate = intOf(s.RestingHeartRate)
		rec.SpO2Percentage = intOf(s.SpO2Percentage)
		rec.SkinTempCelsius = f64(s.SkinTempCelsius)
	}
	return rec, nil
}

// Sleep maps one raw sleep payload. Stage durations live under
// score.stage_summary; a missing score leaves them zero.
func Sleep(userID uuid.UUID, raw json.RawMessage) (store.SleepRecord, error) {
	var w whoop.Sleep
	if err := json.Unmarshal(raw, &w); err != nil {
		return store.SleepRecord{}, err
	}
	if w.ID == "" {
		return store.SleepRecord{}, errMissingID
	}
	if !w.End.After(w.Start) {
		return store.SleepRecord{}, errTimeOrder
	}

	rec := store.SleepRecord{
		ID:        w.ID,
		UserID:    userID,
		CycleID:   w.CycleID,
		StartTime: w.Start,
		EndTime:   w.End,
		Raw:       raw,
	}
	if s := w.Score; s != nil {
		if bad := s.SleepPerformancePercentage; bad < 0 || bad > 100 {
			return store.SleepRecord{}, errScoreRange
		}
		ss := s.StageSummary
		asleep := ss.TotalLightSleepTimeMilli + ss.TotalSlowWaveSleepTimeMilli + ss.TotalRemSleepTimeMilli
		if asleep < 0 {
			return store.SleepRecord{}, errScoreRange
		}
		rec.TotalSleepTimeMilli = asleep
		rec.RemSleepTimeMilli = ss.TotalRemSleepTimeMilli
		rec.SlowWaveSleepTimeMilli = ss.TotalSlowWaveSleepTimeMilli
		rec.LightSleepTimeMilli = ss.TotalLightSleepTimeMilli
		rec.AwakeTimeMilli = ss.TotalAwakeTimeMilli
		rec.PerformancePercentage = f64(s.SleepPerformancePercentage)
		rec.ConsistencyPercentage = f64(s.SleepConsistencyPercentage)
		rec.EfficiencyPercentage = f64(s.SleepEfficiencyPercentage)
	}
	return rec, nil
}

// Workout maps one raw workout payload.
func Workout(userID uuid.UUID, raw json.RawMessage) (store.WorkoutRecord, error) {
	var w whoop.Workout
	if err := json.Unmarshal(raw, &w); err != nil {
		return store.WorkoutRecord{}, err
	}
	if w.ID == "" {
		return store.WorkoutRecord{}, errMissingID
	}
	if !w.End.After(w.Start) {
		return store.WorkoutRecord{}, errTimeOrder
	}

	rec := store.WorkoutRecord{
		ID:            w.ID,
		UserID:        userID,
		SportID:       w.SportID,
		SportName:     w.SportName,
		StartTime:     w.Start,
		EndTime:       w.End,
		DurationMilli: w.End.Sub(w.Start).Milliseconds(),
		Raw:           raw,
	}
	if s := w.Score; s != nil {
		if s.Strain < 0 || s.Strain > 21 {
			return store.WorkoutRecord{}, errScoreRange
		}
		rec.Strain = f64(s.Strain)
		rec.AverageHeartRate = intOf(s.AverageHeartRate)
		rec.MaxHeartRate = intOf(s.MaxHeartRate)
		rec.Kilojoule = f64(s.Kilojoule)
		rec.DistanceMeter = f64(s.DistanceMeter)
	}
	return rec, nil
}

// Cycle maps one raw cycle payload. End is nil while the cycle is in
// progress; that record is still accepted.
func Cycle(userID uuid.UUID, raw json.RawMessage) (store.CycleRecord, error) {
	var w whoop.Cycle
	if err := json.Unmarshal(raw, &w); err != nil {
		return store.CycleRecord{}, err
	}
	if w.ID == 0 {
		return store.CycleRecord{}, errMissingID
	}
	if w.End != nil && !w.End.After(w.Start) {
		return store.CycleRecord{}, errTimeOrder
	}

	rec := store.CycleRecord{
		ID:        strconv.FormatInt(w.ID, 10),
		UserID:    userID,
		StartTime: w.Start,
		EndTime:   w.End,
		Raw:       raw,
	}
	if s := w.Score; s != nil {
		if s.Strain < 0 || s.Strain > 21 {
			return store.CycleRecord{}, errScoreRange
		}
		rec.DayStrain = f64(s.Strain)
		rec.Kilojoule = f64(s.Kilojoule)
		rec.AverageHeartRate = intOf(s.AverageHeartRate)
		rec.MaxHeartRate = intOf(s.MaxHeartRate)
	}
	return rec, nil
}

// Batch normalizers: invalid records are dropped and counted.

func Recoveries(userID uuid.UUID, raws []json.RawMessage) ([]store.RecoveryRecord, int) {
	out := make([]store.RecoveryRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, err := Recovery(userID, raw)
		if err != nil {
			dropped++
			log.Debug().Err(err).Msg("dropped invalid recovery record")
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

func Sleeps(userID uuid.UUID, raws []json.RawMessage) ([]store.SleepRecord, int) {
	out := make([]store.SleepRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, err := Sleep(userID, raw)
		if err != nil {
			dropped++
			log.Debug().Err(err).Msg("dropped invalid sleep record")
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

func Workouts(userID uuid.UUID, raws []json.RawMessage) ([]store.WorkoutRecord, int) {
	out := make([]store.WorkoutRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, err := Workout(userID, raw)
		if err != nil {
			dropped++
			log.Debug().Err(err).Msg("dropped invalid workout record")
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

func Cycles(userID uuid.UUID, raws []json.RawMessage) ([]store.CycleRecord, int) {
	out := make([]store.CycleRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, err := Cycle(userID, raw)
		if err != nil {
			dropped++
			log.Debug().Err(err).Msg("dropped invalid cycle record")
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

// f64 returns a pointer to v. Upstream emits decimals even for
// integer-valued quantities, so integer fields coerce via intOf.
func f64(v float64) *float64 { return &v }

func intOf(v float64) *int {
	n := int(v)
	return &n
}
