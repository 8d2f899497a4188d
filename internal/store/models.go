package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Sync log statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// RecoveryRecord is keyed by the upstream sleep_id: recovery is 1:1 with a
// sleep session and carries no id of its own. Score metrics are pointers
// because the upstream omits the score object while the user is calibrating.
type RecoveryRecord struct {
	ID               string          `json:"id"`
	UserID           uuid.UUID       `json:"-"`
	CycleID          int64           `json:"cycle_id"`
	RecoveryScore    *float64        `json:"recovery_score"`
	HRVRmssdMilli    *float64        `json:"hrv_rmssd_milli"`
	RestingHeartRate *int            `json:"resting_heart_rate"`
	SpO2Percentage   *int            `json:"spo2_percentage"`
	SkinTempCelsius  *float64        `json:"skin_temp_celsius"`
	CreatedAt        time.Time       `json:"created_at"`
	Raw              json.RawMessage `json:"-"`
}

type SleepRecord struct {
	ID                     string          `json:"id"`
	UserID                 uuid.UUID       `json:"-"`
	CycleID                *int64          `json:"cycle_id,omitempty"`
	TotalSleepTimeMilli    int64           `json:"total_sleep_time_milli"`
	RemSleepTimeMilli      int64           `json:"rem_sleep_time_milli"`
	SlowWaveSleepTimeMilli int64           `json:"slow_wave_sleep_time_milli"`
	LightSleepTimeMilli    int64           `json:"light_sleep_time_milli"`
	AwakeTimeMilli         int64           `json:"awake_time_milli"`
	PerformancePercentage  *float64        `json:"performance_percentage"`
	ConsistencyPercentage  *float64        `json:"consistency_percentage"`
	EfficiencyPercentage   *float64        `json:"efficiency_percentage"`
	StartTime              time.Time       `json:"start_time"`
	EndTime                time.Time       `json:"end_time"`
	Raw                    json.RawMessage `json:"-"`
}

type WorkoutRecord struct {
	ID               string          `json:"id"`
	UserID           uuid.UUID       `json:"-"`
	Strain           *float64        `json:"strain"`
	AverageHeartRate *int            `json:"average_heart_rate"`
	MaxHeartRate     *int            `json:"max_heart_rate"`
	Kilojoule        *float64        `json:"kilojoule"`
	DistanceMeter    *float64        `json:"distance_meter"`
	SportID          *int            `json:"sport_id,omitempty"`
	SportName        string          `json:"sport_name"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	DurationMilli    int64           `json:"duration_milli"`
	Raw              json.RawMessage `json:"-"`
}

// CycleRecord end time is nil for the in-progress cycle.
type CycleRecord struct {
	ID               string          `json:"id"`
	UserID           uuid.UUID       `json:"-"`
	DayStrain        *float64        `json:"day_strain"`
	Kilojoule        *float64        `json:"kilojoule"`
	AverageHeartRate *int            `json:"average_heart_rate"`
	MaxHeartRate     *int            `json:"max_heart_rate"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          *time.Time      `json:"end_time"`
	Raw              json.RawMessage `json:"-"`
}

// SyncLogEntry is the per-(user, data_type) freshness bookkeeping row.
type SyncLogEntry struct {
	UserID        uuid.UUID `json:"-"`
	DataType      string    `json:"data_type"`
	LastSyncAt    time.Time `json:"last_sync_at"`
	SyncStatus    string    `json:"sync_status"`
	RecordsSynced int64     `json:"records_synced"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
}

// UpsertResult reports per-record outcomes of a batch upsert. Partial
// success is expected and must be surfaced, not swallowed.
type UpsertResult struct {
	Stored int
	Failed int
}
