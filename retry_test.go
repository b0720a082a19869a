package mcp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BackoffMin:    1 * time.Millisecond,
		BackoffMax:    2 * time.Millisecond,
		TotalDeadline: time.Second,
	}
}

func TestDoWithRetrySucceedsFirstTry(t *testing.T) {
	msg, err := DoWithRetry(context.Background(), fastRetryPolicy(), func(ctx context.Context) (Message, error) {
		return Message{Method: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Method != "ok" {
		t.Fatalf("got %+v", msg)
	}
}

func TestDoWithRetryReissuesOnRetryableFailure(t *testing.T) {
	var attempts int32
	msg, err := DoWithRetry(context.Background(), fastRetryPolicy(), func(ctx context.Context) (Message, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return Message{}, newError(KindRetryable, "attempt", errors.New("transient"))
		}
		return Message{Method: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Method != "ok" {
		t.Fatalf("got %+v", msg)
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3", attempts)
	}
}

func TestDoWithRetryStopsOnNonRetryableFailure(t *testing.T) {
	var attempts int32
	_, err := DoWithRetry(context.Background(), fastRetryPolicy(), func(ctx context.Context) (Message, error) {
		atomic.AddInt32(&attempts, 1)
		return Message{}, newError(KindNonRetryable, "attempt", errors.New("permanent"))
	})
	if KindOf(err) != KindNonRetryable {
		t.Fatalf("got kind %v, want KindNonRetryable", KindOf(err))
	}
	if attempts != 1 {
		t.Fatalf("got %d attempts, want 1 (no retry on a non-retryable failure)", attempts)
	}
}

func TestDoWithRetryExhaustsRetryBudgetPreservingKind(t *testing.T) {
	// Exhausting the local retry budget doesn't make a transient failure
	// permanent (spec.md §3's S4: a persistently failing auth-adjacent
	// error must still read as Retryable so a collaborator can reconnect
	// and resubmit), so the original Kind survives past exhaustion.
	policy := fastRetryPolicy()
	policy.MaxRetries = 2
	var attempts int32
	_, err := DoWithRetry(context.Background(), policy, func(ctx context.Context) (Message, error) {
		atomic.AddInt32(&attempts, 1)
		return Message{}, newError(KindRetryable, "attempt", errors.New("transient"))
	})
	if KindOf(err) != KindRetryable {
		t.Fatalf("got kind %v, want KindRetryable after exhausting retries", KindOf(err))
	}
	if attempts != 3 { // first try + 2 retries
		t.Fatalf("got %d attempts, want 3", attempts)
	}
}

func TestDoWithRetryDeadlineExpiryIsTimeoutRegardlessOfBudget(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 100, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond, TotalDeadline: 20 * time.Millisecond}
	_, err := DoWithRetry(context.Background(), policy, func(ctx context.Context) (Message, error) {
		return Message{}, newError(KindRetryable, "attempt", errors.New("transient"))
	})
	if KindOf(err) != KindTimeout {
		t.Fatalf("got kind %v, want KindTimeout", KindOf(err))
	}
}

func TestDoWithRetryExplicitCancellationWinsOverPendingRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 100, BackoffMin: time.Hour, BackoffMax: time.Hour + time.Second, TotalDeadline: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := DoWithRetry(ctx, policy, func(ctx context.Context) (Message, error) {
			return Message{}, newError(KindRetryable, "attempt", errors.New("transient"))
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if KindOf(err) != KindCancelled {
			t.Fatalf("got kind %v, want KindCancelled", KindOf(err))
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation did not preempt the pending retry backoff")
	}
}
