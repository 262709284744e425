// Package retry wraps provider calls with classified exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/chronolens/chronolens/internal/ai"
	"github.com/chronolens/chronolens/internal/logging"
)

// Options controls the retry policy
type Options struct {
	MaxRetries int           // Retry attempts after the first failure (default: 3)
	BaseDelay  time.Duration // Backoff base; attempt n sleeps BaseDelay * 2^n (default: 2s)

	// OnRetry, when set, is called before each backoff sleep
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultOptions returns the standard pipeline retry policy
func DefaultOptions() Options {
	return Options{MaxRetries: 3, BaseDelay: 2 * time.Second}
}

// Do executes fn, retrying quota failures with exponential backoff.
//
// Classification:
//   - quota errors sleep BaseDelay * 2^attempt and retry, up to MaxRetries
//   - input-too-long errors rethrow immediately; retrying cannot shrink input
//   - ctx cancellation (before a call or during a backoff sleep) aborts with
//     a cancellation error, distinct from exhaustion
//
// After MaxRetries quota failures the last error is returned wrapped as a
// terminal retries-exhausted failure.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) (string, error)) (string, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", ai.WrapError(ai.KindCancelled, "cancelled before attempt", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch {
		case ai.IsCancelled(err):
			return "", err
		case ai.IsInputTooLong(err):
			return "", err
		case ai.IsQuota(err):
			if attempt == opts.MaxRetries {
				break
			}
			delay := opts.BaseDelay * (1 << attempt)
			logging.Warnf("[Retry] Quota error (attempt %d/%d), backing off %s: %v",
				attempt+1, opts.MaxRetries, delay, err)
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, delay, err)
			}
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}
		default:
			return "", err
		}
	}

	return "", ai.WrapError(ai.KindQuota, "retries exhausted", lastErr)
}

// sleep waits for d or until ctx is cancelled, whichever comes first
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ai.WrapError(ai.KindCancelled, "cancelled during backoff", ctx.Err())
	case <-timer.C:
		return nil
	}
}
