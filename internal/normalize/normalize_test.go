package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testUser = uuid.MustParse("0c8459f7-9b7f-4f0e-9e0a-3a1d2f4b5c6d")

func TestRecovery_MapsUpstreamShape(t *testing.T) {
	raw := json.RawMessage(`{
		"cycle_id": 42,
		"sleep_id": "abc",
		"user_id": 9001,
		"created_at": "2026-08-20T07:12:00Z",
		"updated_at": "2026-08-20T07:15:00Z",
		"score": {
			"user_calibrating": false,
			"recovery_score": 77,
			"resting_heart_rate": 58.0,
			"hrv_rmssd_milli": 45.2,
			"spo2_percentage": 96.4,
			"skin_temp_celsius": 33.1
		}
	}`)

	rec, err := Recovery(testUser, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.ID != "abc" {
		t.Errorf("primary key must be sleep_id, got %q", rec.ID)
	}
	if rec.CycleID != 42 {
		t.Errorf("cycle_id: got %d", rec.CycleID)
	}
	if rec.UserID != testUser {
		t.Errorf("user id: got %s", rec.UserID)
	}
	if rec.RecoveryScore == nil || *rec.RecoveryScore != 77 {
		t.Errorf("recovery_score: got %v", rec.RecoveryScore)
	}
	if rec.HRVRmssdMilli == nil || *rec.HRVRmssdMilli != 45.2 {
		t.Errorf("hrv_rmssd_milli: got %v", rec.HRVRmssdMilli)
	}
	if rec.RestingHeartRate == nil || *rec.RestingHeartRate != 58 {
		t.Errorf("resting_heart_rate must coerce 58.0 to int 58, got %v", rec.RestingHeartRate)
	}
	if len(rec.Raw) == 0 {
		t.Error("raw payload must be preserved")
	}
}

func TestRecovery_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing sleep_id", `{"cycle_id":42,"user_id":1}`},
		{"score above 100", `{"sleep_id":"x","score":{"recovery_score":101}}`},
		{"negative score", `{"sleep_id":"x","score":{"recovery_score":-1}}`},
		{"negative hrv", `{"sleep_id":"x","score":{"recovery_score":50,"hrv_rmssd_milli":-3}}`},
		{"not json", `{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Recovery(testUser, json.RawMessage(tt.raw)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRecovery_NoScoreAccepted(t *testing.T) {
	rec, err := Recovery(testUser, json.RawMessage(`{"sleep_id":"pending","cycle_id":7}`))
	if err != nil {
		t.Fatalf("score-less record should be accepted: %v", err)
	}
	if rec.RecoveryScore != nil {
		t.Error("score fields should stay nil without a score object")
	}
}

func TestSleep_MapsStageSummary(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "sleep-1",
		"user_id": 9001,
		"start": "2026-08-19T22:30:00Z",
		"end": "2026-08-20T06:30:00Z",
		"score": {
			"stage_summary": {
				"total_in_bed_time_milli": 28800000,
				"total_awake_time_milli": 1800000,
				"total_light_sleep_time_milli": 14400000,
				"total_slow_wave_sleep_time_milli": 7200000,
				"total_rem_sleep_time_milli": 5400000
			},
			"sleep_performance_percentage": 88.0,
			"sleep_consistency_percentage": 74.5,
			"sleep_efficiency_percentage": 93.75
		}
	}`)

	rec, err := Sleep(testUser, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Total asleep = light + slow wave + REM, excluding awake time.
	if rec.TotalSleepTimeMilli != 27000000 {
		t.Errorf("total sleep: got %d", rec.TotalSleepTimeMilli)
	}
	if rec.RemSleepTimeMilli != 5400000 {
		t.Errorf("rem: got %d", rec.RemSleepTimeMilli)
	}
	if rec.AwakeTimeMilli != 1800000 {
		t.Errorf("awake: got %d", rec.AwakeTimeMilli)
	}
	if rec.PerformancePercentage == nil || *rec.PerformancePercentage != 88.0 {
		t.Errorf("performance: got %v", rec.PerformancePercentage)
	}
}

func TestSleep_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"start":"2026-08-19T22:30:00Z","end":"2026-08-20T06:30:00Z"}`},
		{"end before start", `{"id":"s","start":"2026-08-20T06:30:00Z","end":"2026-08-19T22:30:00Z"}`},
		{"end equals start", `{"id":"s","start":"2026-08-20T06:30:00Z","end":"2026-08-20T06:30:00Z"}`},
		{"performance above 100", `{"id":"s","start":"2026-08-19T22:30:00Z","end":"2026-08-20T06:30:00Z","score":{"sleep_performance_percentage":120}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Sleep(testUser, json.RawMessage(tt.raw)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestWorkout_MapsAndCoerces(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "workout-1",
		"user_id": 9001,
		"start": "2026-08-20T17:00:00Z",
		"end": "2026-08-20T18:00:00Z",
		"sport_id": 1,
		"sport_name": "running",
		"score": {
			"strain": 14.2,
			"average_heart_rate": 152.0,
			"max_heart_rate": 181.0,
			"kilojoule": 2400.5,
			"distance_meter": 10250.0
		}
	}`)

	rec, err := Workout(testUser, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.DurationMilli != time.Hour.Milliseconds() {
		t.Errorf("duration: got %d", rec.DurationMilli)
	}
	if rec.AverageHeartRate == nil || *rec.AverageHeartRate != 152 {
		t.Errorf("average HR must coerce to int, got %v", rec.AverageHeartRate)
	}
	if rec.Strain == nil || *rec.Strain != 14.2 {
		t.Errorf("strain: got %v", rec.Strain)
	}
	if rec.SportName != "running" {
		t.Errorf("sport name: got %q", rec.SportName)
	}
}

func TestWorkout_StrainRange(t *testing.T) {
	raw := json.RawMessage(`{"id":"w","start":"2026-08-20T17:00:00Z","end":"2026-08-20T18:00:00Z","score":{"strain":22}}`)
	if _, err := Workout(testUser, raw); err == nil {
		t.Error("strain above 21 must be rejected")
	}
}

func TestCycle_NullEndAccepted(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 93845,
		"user_id": 9001,
		"start": "2026-08-20T04:00:00Z",
		"end": null,
		"score": {"strain": 9.3, "kilojoule": 8000, "average_heart_rate": 71, "max_heart_rate": 160}
	}`)

	rec, err := Cycle(testUser, raw)
	if err != nil {
		t.Fatalf("in-progress cycle must be accepted: %v", err)
	}
	if rec.ID != "93845" {
		t.Errorf("id must be the formatted upstream id, got %q", rec.ID)
	}
	if rec.EndTime != nil {
		t.Errorf("end should stay nil, got %v", rec.EndTime)
	}
	if rec.DayStrain == nil || *rec.DayStrain != 9.3 {
		t.Errorf("strain: got %v", rec.DayStrain)
	}
}

func TestCycle_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"start":"2026-08-20T04:00:00Z"}`},
		{"end before start", `{"id":1,"start":"2026-08-20T04:00:00Z","end":"2026-08-20T03:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Cycle(testUser, json.RawMessage(tt.raw)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestBatch_DropsInvalidAndCounts(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"sleep_id":"ok-1","cycle_id":1}`),
		json.RawMessage(`{"cycle_id":2}`),
		json.RawMessage(`{"sleep_id":"ok-2","cycle_id":3}`),
		json.RawMessage(`{"sleep_id":"bad","score":{"recovery_score":900}}`),
	}

	recs, dropped := Recoveries(testUser, raws)
	if len(recs) != 2 {
		t.Errorf("expected 2 valid records, got %d", len(recs))
	}
	if dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", dropped)
	}
	if recs[0].ID != "ok-1" || recs[1].ID != "ok-2" {
		t.Errorf("valid records out of order: %s, %s", recs[0].ID, recs[1].ID)
	}
}
