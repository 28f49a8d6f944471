package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Backoff retries an operation with exponentially growing delays:
// Base, 2*Base, 4*Base, ... up to MaxAttempts tries in total.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

// DefaultBackoff waits 2s then 4s and gives up after the third attempt.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, MaxAttempts: 3}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.Base << (attempt - 1)
}

// Retry calls fn until it succeeds, the attempts run out or ctx is done.
func (b Backoff) Retry(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}
		delay := b.Delay(attempt)
		logger.Warn("retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("feed: %s: gave up after %d attempts: %w", op, attempts, err)
}

// Throttle admits at most one call per interval.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewThrottle returns a throttle with the given minimum interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// Allow reports whether a call may proceed now, and records it if so.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
