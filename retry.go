package mcp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy configures the retry/timeout engine of spec.md §4.4.
type RetryPolicy struct {
	// MaxRetries is how many reissues are attempted after the first try.
	MaxRetries int
	// BackoffMin/BackoffMax bound the constant (non-exponential) jittered
	// delay between reissues.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// TotalDeadline bounds the whole attempt sequence, first try through
	// the last retry.
	TotalDeadline time.Duration
}

// DefaultRetryPolicy matches spec.md §6's defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BackoffMin:    100 * time.Millisecond,
		BackoffMax:    250 * time.Millisecond,
		TotalDeadline: 10 * time.Second,
	}
}

func (p RetryPolicy) jitteredBackoff() time.Duration {
	span := p.BackoffMax - p.BackoffMin
	if span <= 0 {
		return p.BackoffMin
	}
	return p.BackoffMin + time.Duration(rand.Int63n(int64(span)))
}

// Attempt issues a single try of a request against a fresh context and
// returns its result. The retry engine calls it once per try, including
// the first.
type Attempt func(ctx context.Context) (Message, error)

// DoWithRetry runs attempt under policy, reissuing on a Retryable failure
// until MaxRetries is exhausted or TotalDeadline elapses, per spec.md §4.4's
// tie-break rules:
//   - explicit cancellation of ctx always wins over a pending retry wait;
//   - TotalDeadline expiry is Non-retryable even if retry budget remains.
func DoWithRetry(ctx context.Context, policy RetryPolicy, attempt Attempt) (Message, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, policy.TotalDeadline)
	defer cancel()

	var lastErr error
	for try := 0; ; try++ {
		msg, err := attempt(deadlineCtx)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if deadlineCtx.Err() != nil {
			return Message{}, terminalDeadlineError(ctx, lastErr)
		}
		if !IsRetryable(err) {
			return Message{}, err
		}
		if try >= policy.MaxRetries {
			// Exhausting the local retry budget doesn't make a transient
			// failure permanent — it only means this call won't reissue
			// again itself. The Kind (e.g. Retryable for an auth-adjacent
			// failure, spec.md §3 S4) is preserved so a collaborator one
			// layer up can still decide to reconnect and resubmit.
			return Message{}, fmt.Errorf("exhausted %d retries: %w", policy.MaxRetries, lastErr)
		}

		select {
		case <-time.After(policy.jitteredBackoff()):
		case <-deadlineCtx.Done():
			return Message{}, terminalDeadlineError(ctx, lastErr)
		}
	}
}

// terminalDeadlineError distinguishes an explicit caller cancellation from
// a TotalDeadline expiry — the two share a context.Context.Done() signal
// but must not share a Kind.
func terminalDeadlineError(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return newError(KindCancelled, "retry", cause)
	}
	return newError(KindTimeout, "retry", cause)
}
