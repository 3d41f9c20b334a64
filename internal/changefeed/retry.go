package changefeed

import (
	"context"
	"time"
)

// Backoff is an exponential reconnect delay.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

var DefaultBackoff = Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second}

// Delay returns the wait before the given (1-based) attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Min <= 0 {
		b = DefaultBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	d := b.Min << min(attempt-1, 16)
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	return d
}

// Wait sleeps for d unless ctx ends first. It reports whether the caller should continue.
func Wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
