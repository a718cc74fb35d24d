// Package retry wraps fallible operations with a bounded number of attempts
// and a pluggable delay between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Default attempt budget and first backoff delay.
const (
	DefaultAttempts     = 3
	DefaultInitialDelay = 2 * time.Second
)

// DelayFunc returns how long to wait after the given failed attempt (1-based)
// before starting the next one.
type DelayFunc func(failedAttempt int) time.Duration

// Exponential doubles the delay after every failure, starting at initial. There is no cap.
func Exponential(initial time.Duration) DelayFunc {
	return ExponentialCapped(initial, 0)
}

// ExponentialCapped doubles the delay like Exponential but never waits longer
// than maxDelay. A maxDelay <= 0 disables the cap.
func ExponentialCapped(initial, maxDelay time.Duration) DelayFunc {
	return func(failedAttempt int) time.Duration {
		if failedAttempt < 1 {
			failedAttempt = 1
		}
		delay := initial
		for i := 1; i < failedAttempt; i++ {
			if maxDelay > 0 && delay >= maxDelay {
				break
			}
			// stop doubling before the duration overflows
			if delay > time.Duration(1<<62) {
				break
			}
			delay *= 2
		}
		if maxDelay > 0 && delay > maxDelay {
			return maxDelay
		}
		return delay
	}
}

// Constant waits d between every attempt.
func Constant(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of tries including the first. Values below 1 mean 1.
	Attempts int
	// Delay computes the wait after each failure. Nil means Exponential(DefaultInitialDelay).
	Delay DelayFunc
	// Logger receives one warning per retry.
	Logger *zap.Logger
	// OnRetry is invoked before waiting for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns three attempts with a doubling delay starting at two seconds.
func Default() Policy {
	return Policy{
		Attempts: DefaultAttempts,
		Delay:    Exponential(DefaultInitialDelay),
	}
}

// Operation is a single attempt of a retried unit of work.
type Operation[T any] func(ctx context.Context) (T, error)

// Do runs op until it succeeds or the attempt budget is spent. Every failure
// is retried. When all attempts fail the error from the final attempt is
// returned unchanged.
func Do[T any](ctx context.Context, p Policy, op Operation[T]) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delayFn := p.Delay
	if delayFn == nil {
		delayFn = Exponential(DefaultInitialDelay)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := delayFn(attempt)
		logger.Warn("operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, errors.Join(fmt.Errorf("retry aborted after attempt %d: %w", attempt, sleepErr), lastErr)
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
