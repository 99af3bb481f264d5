// Package retry provides an explicit retry policy consumed by a generic
// attempt helper, so callers get tagged outcomes instead of errors thrown
// through layers.
package retry

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFatal     Outcome = "fatal"
)

// Policy describes how many attempts to make, how long to wait between
// them, and which errors are worth retrying at all.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// ExponentialBackoff returns a backoff function of base*2^attempt capped
// at max.
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		delay := base
		for i := 0; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				return max
			}
		}
		return delay
	}
}

type Result struct {
	Outcome  Outcome
	Attempts int
	Err      error
}

// Do runs fn under the policy. A nil error stops with OutcomeSuccess, a
// non-retryable error with OutcomeFatal, and running out of attempts with
// OutcomeExhausted carrying the last error.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) Result {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && policy.Backoff != nil {
			select {
			case <-ctx.Done():
				return Result{Outcome: OutcomeFatal, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(policy.Backoff(attempt - 1)):
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return Result{Outcome: OutcomeSuccess, Attempts: attempt + 1}
		}
		lastErr = err
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeFatal, Attempts: attempt + 1, Err: lastErr}
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return Result{Outcome: OutcomeFatal, Attempts: attempt + 1, Err: lastErr}
		}
	}
	return Result{Outcome: OutcomeExhausted, Attempts: maxAttempts, Err: lastErr}
}
