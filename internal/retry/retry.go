package retry

import (
	"context"
	"fmt"
	"time"
)

// Operation is a single attempt. A nil error ends the loop.
type Operation func(ctx context.Context) error

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts caps the total number of attempts. 0 means unlimited.
	MaxAttempts int

	// Backoff computes the wait between attempts. Nil means no wait.
	Backoff Backoff

	// Sleep performs the wait. Nil uses a context-aware timer.
	Sleep SleepFunc

	// OnFailure is called after every failed attempt, before any wait.
	OnFailure func(attempt int, err error)
}

// Bounded reports whether the policy gives up after MaxAttempts.
func (p Policy) Bounded() bool {
	return p.MaxAttempts > 0
}

// Do runs op until it returns nil.
//
// It waits Backoff(n) between attempt n and n+1, but never after the final
// attempt of a bounded policy. Cancellation of ctx ends the loop with the
// context error.
//
// Returns:
//   - int: Number of times op was called
//   - error: nil on success, ErrExhausted (wrapping the last error) when a
//     bounded policy runs out, or the context error
func (p Policy) Do(ctx context.Context, op Operation) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := op(ctx)
		if err == nil {
			return attempt, nil
		}

		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}

		if p.Bounded() && attempt >= p.MaxAttempts {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		if p.Backoff == nil {
			continue
		}
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return attempt, err
		}
	}
}

// Constant waits the same delay after every failure.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential doubles the delay after every failure, starting at initial
// and capped at max.
func Exponential(initial, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := initial
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// FromSettings picks a constant backoff, or an exponential one when maxDelay
// exceeds delay.
func FromSettings(delay, maxDelay time.Duration) Backoff {
	if maxDelay > delay {
		return Exponential(delay, maxDelay)
	}
	return Constant(delay)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
