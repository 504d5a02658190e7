package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("rate limited"), 429)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustedWrapsLastError(t *testing.T) {
	var calls int
	last := errors.New("still unavailable")
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(last, 503)
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}

	var ee *ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExhaustedError, got %T: %v", err, err)
	}
	if ee.Attempts != 3 {
		t.Errorf("expected Attempts=3, got %d", ee.Attempts)
	}
	if !errors.Is(err, last) {
		t.Error("expected exhausted error to wrap the last attempt's error")
	}
	if !IsExhausted(err) {
		t.Error("IsExhausted should report true")
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return errors.New("invalid processor")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if IsExhausted(err) {
		t.Error("permanent failure must not be reported as exhausted")
	}
}

func TestDo_PermanentOverridesTransientPattern(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return Permanent(errors.New("i/o timeout while parsing response body"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxAttempts:    10,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2.0,
	}

	var calls int
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if IsExhausted(err) {
		t.Error("cancellation must not be reported as exhausted")
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "again" }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("again")
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("fail"), 502)
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected retries [1 2], got %v", attempts)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("blip"), 500)
		}
		return "INV-001", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "INV-001" {
		t.Errorf("expected INV-001, got %q", got)
	}
}

func TestDoVal_ZeroOnFailure(t *testing.T) {
	got, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		return 42, errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != 0 {
		t.Errorf("expected zero value, got %d", got)
	}
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := computeBackoff(i, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Multiplier:     10.0,
	}
	if got := computeBackoff(5, cfg); got != 3*time.Second {
		t.Errorf("expected cap at 3s, got %v", got)
	}
}

func TestComputeBackoff_JitterWithinRange(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	}
	for i := 0; i < 50; i++ {
		got := computeBackoff(0, cfg)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("backoff %v outside [50ms, 150ms]", got)
		}
	}
}

func TestWaitFor_HonorsRetryAfterHint(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2.0}
	te := NewTransientError(errors.New("rate limited"), 429)

	te.RetryAfter = time.Second
	if got := waitFor(0, cfg, te); got != time.Second {
		t.Errorf("expected hint of 1s, got %v", got)
	}
	te.RetryAfter = time.Minute
	if got := waitFor(0, cfg, te); got != 2*time.Second {
		t.Errorf("expected hint capped at 2s, got %v", got)
	}
	te.RetryAfter = time.Millisecond
	if got := waitFor(2, cfg, te); got != 40*time.Millisecond {
		t.Errorf("expected backoff of 40ms over short hint, got %v", got)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RetryConfig{
		MaxAttempts:      5,
		InitialBackoffMs: 250,
		MaxBackoffMs:     2000,
		Multiplier:       3.0,
		JitterFraction:   0.1,
	})
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 2*time.Second {
		t.Errorf("MaxBackoff = %v", cfg.MaxBackoff)
	}
	if cfg.Multiplier != 3.0 || cfg.JitterFraction != 0.1 {
		t.Errorf("Multiplier/Jitter = %v/%v", cfg.Multiplier, cfg.JitterFraction)
	}
}

func TestRetryLogger(t *testing.T) {
	cfg := DefaultRetryConfig().WithLogger("documentai", "process")
	if cfg.OnRetry == nil {
		t.Fatal("expected OnRetry to be set")
	}
	cfg.OnRetry(1, errors.New("boom")) // must not panic with the no-op global logger
}
