package youcom

import (
	"context"
	"time"
)

// defaultRetryAfter is used when a 429 response carries no usable Retry-After header
const defaultRetryAfter = 60 * time.Second

var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// ComputeRetryDelay returns the backoff delay applied after the given
// zero-based failed attempt. Attempts past the schedule reuse the last entry.
func ComputeRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(backoffSchedule) {
		attempt = len(backoffSchedule) - 1
	}
	return backoffSchedule[attempt]
}

// Sleeper abstracts delay so retry timing is testable without real timers
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
