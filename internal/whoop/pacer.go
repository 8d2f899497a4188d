package whoop

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound requests so the process never exceeds the upstream
// per-minute ceiling, and tracks a rolling daily budget. One pacer is shared
// by all users: the quota is per API account, not per end user.
type Pacer struct {
	limiter *rate.Limiter

	mu       sync.Mutex
	perDay   int
	usedDay  int
	dayStart time.Time
}

// NewPacer builds a pacer allowing perMinute requests per minute (smoothed,
// burst of 1 so spacing is enforced rather than allowed to clump) and perDay
// requests per UTC day. perDay <= 0 disables the daily budget.
func NewPacer(perMinute, perDay int) *Pacer {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Pacer{
		limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		perDay:   perDay,
		dayStart: startOfDayUTC(time.Now()),
	}
}

// Wait blocks until a request slot is available or the context is done.
// Returns a RateLimitedError when the daily budget is spent.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	if sod := startOfDayUTC(now); sod.After(p.dayStart) {
		p.dayStart = sod
		p.usedDay = 0
	}
	if p.perDay > 0 && p.usedDay >= p.perDay {
		retry := p.dayStart.Add(24 * time.Hour).Sub(now)
		p.mu.Unlock()
		return &RateLimitedError{RetryAfter: retry}
	}
	p.usedDay++
	p.mu.Unlock()

	return p.limiter.Wait(ctx)
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
