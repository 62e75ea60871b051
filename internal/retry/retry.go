package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines how retries should be handled.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy matches the delivery contract: three attempts total with a
// short growing backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// TransientError wraps an error to indicate the operation may be retried.
// RetryAfter, when positive, overrides the computed backoff (used for
// provider-suggested cooldowns).
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientWithDelay marks an error as retryable with a suggested cooldown.
func TransientWithDelay(err error, delay time.Duration) error {
	return &TransientError{Err: err, RetryAfter: delay}
}

// IsTransient checks whether an error should trigger a retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	return errors.As(err, &te)
}

// Do executes fn with backoff between attempts. Non-transient errors abort
// immediately; context cancellation interrupts the backoff sleep.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsTransient(err) {
			return err
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		backoff := backoffFor(policy, attempt)

		var te *TransientError
		if errors.As(err, &te) && te.RetryAfter > 0 {
			backoff = te.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("attempts exhausted (%d): %w", policy.MaxAttempts, lastErr)
}

func backoffFor(policy Policy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))

	if backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}

	duration := time.Duration(backoff)

	// Jitter avoids synchronized retries across accounts.
	if policy.Jitter {
		duration += time.Duration(float64(duration) * 0.1 * (2*rand.Float64() - 1))
	}

	return duration
}
