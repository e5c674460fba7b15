package imagegen

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a stage is attempted.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy makes two attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, Delay: time.Second}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn up to p.MaxAttempts times, sleeping p.Delay between attempts.
// It stops early when ctx is done or when stop reports the error as final.
// The number of attempts made is returned with the last error.
func retry[T any](ctx context.Context, p RetryPolicy, sleep sleepFunc, stop func(error) bool, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var (
		zero    T
		lastErr error
	)
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err
		if attempt == max || (stop != nil && stop(err)) {
			return zero, attempt, lastErr
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return zero, attempt, err
		}
	}
	return zero, max, lastErr
}
