package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestExecuteWithRetry_SucceedsFirstTry(t *testing.T) {
	attempts, err := ExecuteWithRetry(func() error { return nil }, fastRetryConfig())
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestExecuteWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	attempts, err := ExecuteWithRetry(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastRetryConfig())

	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3/3", attempts, calls)
	}
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	wantErr := errors.New("permanent")
	calls := 0
	attempts, err := ExecuteWithRetry(func() error {
		calls++
		return wantErr
	}, fastRetryConfig())

	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 4 || calls != 4 {
		t.Errorf("attempts = %d, calls = %d, want 4/4 (1 try + 3 retries)", attempts, calls)
	}
}

func TestExecuteWithRetry_NoRetriesConfigured(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	_, err := ExecuteWithRetry(func() error {
		calls++
		return errors.New("nope")
	}, cfg)

	if err == nil || calls != 1 {
		t.Errorf("calls = %d, err = %v; want single attempt", calls, err)
	}
}

func TestBackoffWithJitter_Bounded(t *testing.T) {
	base := 10 * time.Millisecond
	max := 40 * time.Millisecond

	for attempt := 0; attempt < 8; attempt++ {
		d := backoffWithJitter(base, max, attempt)
		// Jitter is at most ±25% of the capped delay.
		if d > max+max/4 {
			t.Errorf("attempt %d: delay %v above cap %v", attempt, d, max+max/4)
		}
		if d <= 0 {
			t.Errorf("attempt %d: non-positive delay %v", attempt, d)
		}
	}
}

func TestService_AddTaskValidatesExpr(t *testing.T) {
	svc := NewService()

	if err := svc.AddTask("ok", "*/5 * * * *", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}
	if err := svc.AddTask("bad", "not a cron expr", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("invalid expression accepted")
	}
}
