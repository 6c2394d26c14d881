package genai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()
	if d := CalculateBackoff(0, time.Second, 10*time.Second); d != 0 {
		t.Errorf("attempt 0 = %v, want 0", d)
	}
	for attempt := 1; attempt <= 6; attempt++ {
		d := CalculateBackoff(attempt, 100*time.Millisecond, time.Second)
		if d < 0 || d > time.Second {
			t.Errorf("attempt %d = %v, want within [0, 1s]", attempt, d)
		}
	}
	if d := CalculateBackoff(3, 0, time.Second); d != 0 {
		t.Errorf("zero initial delay = %v, want 0", d)
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep(cancelled) = %v", err)
	}
}

func TestWithRetry_DefaultIsSingleAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	err := WithRetry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return errors.New("503 unavailable")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("503 unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry() = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_StopsOnNonTransient(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	calls := 0
	want := errors.New("400 bad request")
	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Errorf("err = %v, calls = %d; want bad request after 1 call", err, calls)
	}
}

func TestWithRetry_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}

func TestHasSufficientBudget(t *testing.T) {
	t.Parallel()
	if !HasSufficientBudget(context.Background(), time.Hour) {
		t.Error("no deadline should mean unlimited budget")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if HasSufficientBudget(ctx, time.Second) {
		t.Error("1s should exceed a 50ms budget")
	}
}
