// Package retry holds the backoff policy for the remote store adapter.
//
// The consistency core itself never retries (integrity findings are data and
// lock contention is surfaced to the caller); retry policy belongs to the
// store adapters, which attach their own logging through the OnRetry hook.
package retry

import (
	"context"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
)

// Policy drives retries of a single store call. The zero value performs the
// call once with no retries.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool

	// OnRetry is called before each backoff sleep with the attempt that
	// just failed (1-based), its error, and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// StorePolicy is the default policy for remote store calls.
func StorePolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// attempt budget, or the context is cancelled. Retryability is decided by
// the store error taxonomy, not by the caller.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !perrors.IsRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		wait := delay
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if p.Jitter {
			wait = wait/2 + time.Duration(rand.Int63n(int64(wait/2)+1))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
