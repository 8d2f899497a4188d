package store

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestCountUpsert(t *testing.T) {
	tests := []struct {
		name       string
		tag        pgconn.CommandTag
		err        error
		wantStored int
		wantFailed int
	}{
		{"row written", pgconn.NewCommandTag("INSERT 0 1"), nil, 1, 0},
		{"statement error", pgconn.CommandTag{}, errors.New("boom"), 0, 1},
		{"ownership guard blocked the write", pgconn.NewCommandTag("INSERT 0 0"), nil, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res UpsertResult
			countUpsert(&res, tt.tag, tt.err, "rec-1", "recovery")
			if res.Stored != tt.wantStored {
				t.Errorf("stored: got %d want %d", res.Stored, tt.wantStored)
			}
			if res.Failed != tt.wantFailed {
				t.Errorf("failed: got %d want %d", res.Failed, tt.wantFailed)
			}
		})
	}
}

func TestDayBounds(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"utc midnight",
			time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			"mid-day truncates",
			time.Date(2026, 8, 20, 15, 42, 7, 0, time.UTC),
			time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			"non-utc input converts first",
			time.Date(2026, 8, 20, 22, 0, 0, 0, time.FixedZone("UTC-5", -5*3600)),
			time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := dayBounds(tt.in)
			if !start.Equal(tt.want) {
				t.Errorf("start: got %s want %s", start, tt.want)
			}
			if !end.Equal(tt.want.Add(24 * time.Hour)) {
				t.Errorf("end: got %s want %s", end, tt.want.Add(24*time.Hour))
			}
		})
	}
}
