package fetcher

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Governor spaces dispatches so that at most calls are admitted per period.
// Admissions are evenly spaced period/calls apart with a burst of one, so no
// window of one period ever holds more than calls dispatches.
//
// One Governor is created per process and shared by every fetch, so the
// ceiling applies to the aggregate call rate rather than per task.
type Governor struct {
	calls   int
	period  time.Duration
	limiter *rate.Limiter
}

// NewGovernor creates a Governor admitting calls per period.
func NewGovernor(calls int, period time.Duration) *Governor {
	if calls < 1 {
		calls = 1
	}
	return &Governor{
		calls:   calls,
		period:  period,
		limiter: rate.NewLimiter(rate.Every(period/time.Duration(calls)), 1),
	}
}

// Wait blocks until the caller may dispatch, or ctx is done.
// It returns how long the caller was held back.
func (g *Governor) Wait(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r := g.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return 0, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return 0, ctx.Err()
	case <-timer.C:
		return delay, nil
	}
}

// Limits returns the configured ceiling.
func (g *Governor) Limits() (int, time.Duration) {
	return g.calls, g.period
}
