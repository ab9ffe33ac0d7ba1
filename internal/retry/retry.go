// Package retry provides the policy applied uniformly around every costed
// external call: retryable failures back off exponentially up to a bounded
// attempt count, fatal failures return immediately.
package retry

import (
	"context"
	"time"

	"DailyDigest/internal/domain"
)

// Policy parameterizes the retry loop. The zero value is unusable; use
// DefaultPolicy or values from configuration.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultPolicy retries twice after the first failure with 500ms then 1s
// delays.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, Multiplier: 2}
}

// Do runs fn until it succeeds, fails fatally, or attempts are exhausted.
// Only errors classified retryable by domain.IsRetryable are retried. The
// context is honored between attempts.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !domain.IsRetryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return err
}
