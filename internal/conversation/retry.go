package conversation

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// retryWithBackoff runs op up to attempts times, sleeping with exponential
// backoff and jitter between tries. Context errors are never retried.
func retryWithBackoff[T any](ctx context.Context, attempts int, baseDelay time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == attempts || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		delay := baseDelay << (attempt - 1)
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
		// jitter +/- 10%
		delay = delay - delay/10 + time.Duration(rand.Int63n(int64(delay/5)+1))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
