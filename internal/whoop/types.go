package whoop

import (
	"encoding/json"
	"fmt"
	"time"
)

// DataType identifies one of the four upstream resources.
type DataType string

const (
	TypeRecovery DataType = "recovery"
	TypeSleep    DataType = "sleep"
	TypeWorkout  DataType = "workout"
	TypeCycle    DataType = "cycle"
)

// AllTypes lists every syncable data type in stable order.
var AllTypes = []DataType{TypeRecovery, TypeSleep, TypeWorkout, TypeCycle}

// ParseDataType validates a client-supplied type string.
func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case TypeRecovery, TypeSleep, TypeWorkout, TypeCycle:
		return DataType(s), nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// Path returns the resource path under the API base for this data type.
func (d DataType) Path() string {
	switch d {
	case TypeRecovery:
		return "recovery"
	case TypeSleep:
		return "activity/sleep"
	case TypeWorkout:
		return "activity/workout"
	case TypeCycle:
		return "cycle"
	}
	return string(d)
}

// Page is one page of raw upstream records. Records stay opaque here so the
// normalizer can both decode them and keep the original blob for forensics.
type Page struct {
	Records   []json.RawMessage
	NextToken string
}

// pageEnvelope matches the upstream collection response shape.
type pageEnvelope struct {
	Records   []json.RawMessage `json:"records"`
	NextToken *string           `json:"next_token"`
}

// Profile is the upstream user profile, fetched once at OAuth completion to
// learn the upstream account id.
type Profile struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Wire shapes for the four resources. Score fields are nested under a
// "score" object on every endpoint; a record without a computed score omits
// it entirely, so Score is a pointer.

// Recovery has no id of its own: it is 1:1 with a sleep session and is
// identified by sleep_id.
type Recovery struct {
	CycleID   int64     `json:"cycle_id"`
	SleepID   string    `json:"sleep_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Score     *struct {
		UserCalibrating  bool    `json:"user_calibrating"`
		RecoveryScore    float64 `json:"recovery_score"`
		RestingHeartRate float64 `json:"resting_heart_rate"`
		HRVRmssdMilli    float64 `json:"hrv_rmssd_milli"`
		SpO2Percentage   float64 `json:"spo2_percentage"`
		SkinTempCelsius  float64 `json:"skin_temp_celsius"`
	} `json:"score"`
}

type Sleep struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CycleID   *int64    `json:"cycle_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Nap       bool      `json:"nap"`
	Score     *struct {
		StageSummary struct {
			TotalInBedTimeMilli         int64 `json:"total_in_bed_time_milli"`
			TotalAwakeTimeMilli         int64 `json:"total_awake_time_milli"`
			TotalLightSleepTimeMilli    int64 `json:"total_light_sleep_time_milli"`
			TotalSlowWaveSleepTimeMilli int64 `json:"total_slow_wave_sleep_time_milli"`
			TotalRemSleepTimeMilli      int64 `json:"total_rem_sleep_time_milli"`
		} `json:"stage_summary"`
		SleepPerformancePercentage float64 `json:"sleep_performance_percentage"`
		SleepConsistencyPercentage float64 `json:"sleep_consistency_percentage"`
		SleepEfficiencyPercentage  float64 `json:"sleep_efficiency_percentage"`
	} `json:"score"`
}

type Workout struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	SportID   *int      `json:"sport_id,omitempty"`
	SportName string    `json:"sport_name"`
	Score     *struct {
		Strain           float64 `json:"strain"`
		AverageHeartRate float64 `json:"average_heart_rate"`
		MaxHeartRate     float64 `json:"max_heart_rate"`
		Kilojoule        float64 `json:"kilojoule"`
		DistanceMeter    float64 `json:"distance_meter"`
	} `json:"score"`
}

// Cycle end is null while the cycle is in progress.
type Cycle struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end"`
	Score     *struct {
		Strain           float64 `json:"strain"`
		Kilojoule        float64 `json:"kilojoule"`
		AverageHeartRate float64 `json:"average_heart_rate"`
		MaxHeartRate     float64 `json:"max_heart_rate"`
	} `json:"score"`
}
