package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestRun_CollectsResultsInOrder(t *testing.T) {
	e := New(testLogger(t), 2)
	out, err := Run(context.Background(), e, 5, func(ctx context.Context, i int) (int, error) {
		return i * i, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestRun_FirstErrorShortCircuits(t *testing.T) {
	e := New(testLogger(t), 3)
	boom := errors.New("boom")
	_, err := Run(context.Background(), e, 4, func(ctx context.Context, i int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err == nil {
		t.Fatalf("expected an error to propagate")
	}
}

func TestRunTolerant_DoesNotShortCircuitOnPerItemFailure(t *testing.T) {
	e := New(testLogger(t), 4)
	boom := errors.New("item failed")

	var ran int32
	out, errs := RunTolerant(context.Background(), e, 5, func(ctx context.Context, i int) (int, error) {
		atomic.AddInt32(&ran, 1)
		if i%2 == 0 {
			return 0, boom
		}
		return i, nil
	})

	if int(ran) != 5 {
		t.Fatalf("expected every item to run despite failures, ran=%d", ran)
	}
	if len(out) != 5 || len(errs) != 5 {
		t.Fatalf("expected 5 results and 5 error slots, got %d/%d", len(out), len(errs))
	}
	for i, err := range errs {
		if i%2 == 0 && err == nil {
			t.Fatalf("index %d expected error, got nil", i)
		}
		if i%2 == 1 && err != nil {
			t.Fatalf("index %d expected no error, got %v", i, err)
		}
	}
	if out[3] != 3 {
		t.Fatalf("expected surviving item's result preserved, got %d", out[3])
	}
}

func TestRunTolerant_RespectsConcurrencyLimit(t *testing.T) {
	e := New(testLogger(t), 2)

	var inFlight, maxInFlight int32
	_, _ = RunTolerant(context.Background(), e, 8, func(ctx context.Context, i int) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})

	if maxInFlight > 2 {
		t.Fatalf("expected at most 2 concurrent items, observed %d", maxInFlight)
	}
}

func TestExecuteWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: true}
	err := ExecuteWithRetry(context.Background(), testLogger(t), policy, func(error) bool { return true }, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetry_NonRetryableErrorReturnsImmediately(t *testing.T) {
	var attempts int
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}
	permanent := errors.New("permanent")
	err := ExecuteWithRetry(context.Background(), testLogger(t), policy, func(error) bool { return false }, func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error returned, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestExecuteWithRetry_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	var attempts int
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	err := ExecuteWithRetry(context.Background(), testLogger(t), policy, nil, func(ctx context.Context) error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if attempts != policy.MaxRetries+1 {
		t.Fatalf("expected %d total attempts, got %d", policy.MaxRetries+1, attempts)
	}
}

func TestExecuteWithRetry_BackoffStaysWithinJitterBounds(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
	start := time.Now()
	_ = ExecuteWithRetry(context.Background(), testLogger(t), policy, nil, func(ctx context.Context) error {
		return errors.New("always fails")
	})
	elapsed := time.Since(start)
	// One retry after BaseDelay scaled by a uniform [0.5, 1.0] factor: the
	// single sleep must fall within [0.5*base, 1.0*base], with slack for
	// scheduling noise.
	if elapsed < 8*time.Millisecond {
		t.Fatalf("retry fired too fast for the backoff formula: elapsed=%s", elapsed)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("retry delay exceeded the configured base*jitter bound: elapsed=%s", elapsed)
	}
}

func TestExecuteWithRetry_CancelledContextReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var attempts int
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond}
	err := ExecuteWithRetry(ctx, testLogger(t), policy, nil, func(ctx context.Context) error {
		attempts++
		return errors.New("should not run")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("expected the retried function never to run against a cancelled context, ran %d times", attempts)
	}
}

func TestExecuteWithRetry_CancellationDuringBackoffSleepAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second}

	var attempts int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := ExecuteWithRetry(ctx, testLogger(t), policy, nil, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("keep failing")
	})
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled once the backoff sleep is interrupted, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("expected cancellation to abort the backoff sleep promptly, took %s", elapsed)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt before the cancellation interrupted the sleep, got %d", attempts)
	}
}
