package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryWithPolicySucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, attempts, err := RetryWithPolicy(context.Background(), fastPolicy(3),
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("503 service unavailable")
			}
			return "ok", nil
		}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 3 || attempts != 2 {
		t.Errorf("result=%q calls=%d attempts=%d, want ok/3/2", result, calls, attempts)
	}
}

func TestRetryWithPolicyNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	_, _, err := RetryWithPolicy(context.Background(), fastPolicy(5),
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("401 unauthorized")
		}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on non-retryable)", calls)
	}
}

func TestRetryWithPolicyExhaustsRetries(t *testing.T) {
	calls := 0
	var retryCalls int
	_, attempts, err := RetryWithPolicy(context.Background(), fastPolicy(2),
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("429 rate limit")
		},
		func(attempt int, delay time.Duration, err error) { retryCalls++ })

	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 || attempts != 2 || retryCalls != 2 {
		t.Errorf("calls=%d attempts=%d retryCalls=%d, want 3/2/2", calls, attempts, retryCalls)
	}
}

func TestRetryWithPolicyMaybeClassCapped(t *testing.T) {
	calls := 0
	_, _, err := RetryWithPolicy(context.Background(), fastPolicy(10),
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("context deadline exceeded")
		}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != maybeClassRetryCap+1 {
		t.Errorf("calls = %d, want %d (maybe class cap)", calls, maybeClassRetryCap+1)
	}
}

func TestRetryWithPolicyRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := RetryWithPolicy(ctx, fastPolicy(3),
		func(ctx context.Context) (string, error) {
			return "", errors.New("503 service unavailable")
		}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}
