// Package executor implements the Bounded Executor: fan-out of independent
// work items under a per-job concurrency limit, with a per-item retry
// wrapper using the exponential-backoff-with-jitter formula confirmed
// against the original transformation service (base 3s, cap 30s, jitter
// drawn from [0.5, 1.0] of the computed delay).
package executor

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

// RetryPolicy tunes ExecuteWithRetry. A zero BaseDelay or MaxDelay falls back
// to 3s / 30s; MaxRetries and Jitter are used as given (the zero value makes a
// single attempt with no jitter). DefaultRetryPolicy carries the usual values.
type RetryPolicy struct {
	MaxRetries int           // total attempts = MaxRetries + 1
	BaseDelay  time.Duration // default 3s
	MaxDelay   time.Duration // default 30s
	Jitter     bool          // multiply each delay by a factor in [0.5, 1.0]
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = 3 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// DefaultRetryPolicy matches the per-chunk transformation call site: two
// retries (three attempts total), base 3s, cap 30s, jitter enabled.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Jitter: true}

// Executor runs bounded-concurrency fan-out for one job's stage. A fresh
// Executor is expected per stage invocation so its concurrency limit reflects
// that stage's semaphore (transform_sem, image_sem, enrich_sem).
type Executor struct {
	log   *logger.Logger
	limit int
}

func New(log *logger.Logger, maxConcurrent int) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Executor{log: log.With("component", "BoundedExecutor"), limit: maxConcurrent}
}

// Run executes fn for every index in [0, n) with at most e.limit concurrent,
// collecting results into a slice ordered identically to the input. The
// first error cancels the group's context and is returned; results for
// items that never ran are left at their zero value.
func Run[T any](ctx context.Context, e *Executor, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			v, err := fn(gctx, i)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// RunTolerant is like Run but never aborts early: per-item errors are
// collected and returned alongside partial results, for stages where one
// item's permanent failure should not sink its siblings (e.g. per-chunk
// transformation, where TRANSFORMATION falls back to an empty block list on
// parse failure rather than failing the job).
func RunTolerant[T any](ctx context.Context, e *Executor, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, []error) {
	out := make([]T, n)
	errs := make([]error, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			v, err := fn(gctx, i)
			out[i] = v
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}

// ExecuteWithRetry retries fn using an exponential-backoff formula:
// delay = min(base * 2^attempt, max), then scaled by a uniform factor in
// [0.5, 1.0] when jitter is enabled. isRetryable classifies errors; nil
// isRetryable retries any non-nil error.
func ExecuteWithRetry(ctx context.Context, log *logger.Logger, policy RetryPolicy, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.BaseDelay * time.Duration(1<<uint(attempt))
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
		if policy.Jitter {
			factor := 0.5 + rand.Float64()*0.5
			delay = time.Duration(float64(delay) * factor)
		}

		if log != nil {
			log.Warn("retrying after error", "attempt", attempt+1, "max_retries", policy.MaxRetries, "delay", delay.String(), "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
