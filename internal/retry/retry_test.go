package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chronolens/chronolens/internal/ai"
)

func fastOptions() Options {
	return Options{MaxRetries: 3, BaseDelay: time.Millisecond}
}

func TestRetryableFailuresThenSuccess(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastOptions(), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", ai.NewError(ai.KindQuota, "rate limit exceeded")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	// k retryable failures before success → exactly k+1 invocations
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestFatalInputTooLongInvokedOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastOptions(), func(ctx context.Context) (string, error) {
		calls++
		return "", ai.NewError(ai.KindInputTooLong, "prompt is too long")
	})
	if !ai.IsInputTooLong(err) {
		t.Fatalf("error kind = %s, want input_too_long", ai.KindOf(err))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetriesExhausted(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastOptions(), func(ctx context.Context) (string, error) {
		calls++
		return "", ai.NewError(ai.KindQuota, "429 too many requests")
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !ai.IsQuota(err) {
		t.Errorf("exhaustion kind = %s, want quota", ai.KindOf(err))
	}
	// Initial attempt + MaxRetries retries
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestNonRetryableErrorReturnedImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("unexpected failure")
	_, err := Do(context.Background(), fastOptions(), func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCancelledBeforeCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fastOptions(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if !ai.IsCancelled(err) {
		t.Fatalf("error kind = %s, want cancelled", ai.KindOf(err))
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := Options{
		MaxRetries: 3,
		BaseDelay:  time.Hour, // Would hang without cancellation
		OnRetry: func(attempt int, delay time.Duration, err error) {
			cancel()
		},
	}

	start := time.Now()
	_, err := Do(ctx, opts, func(ctx context.Context) (string, error) {
		return "", ai.NewError(ai.KindQuota, "quota exceeded")
	})
	if !ai.IsCancelled(err) {
		t.Fatalf("error kind = %s, want cancelled", ai.KindOf(err))
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("backoff sleep was not interrupted (took %s)", elapsed)
	}
}
