package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is the bounded backoff policy shared by extraction, refinement
// and sink writes.
type RetryConfig struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay by up to this fraction either way.
	JitterFraction float64

	// ShouldRetry replaces IsTransient when set.
	ShouldRetry func(err error) bool
	// OnRetry runs before each wait with the 1-based retry number.
	OnRetry func(retry int, err error)
}

// DefaultRetryConfig is three attempts starting at 500ms, doubling up to 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// WithLogger returns a copy of cfg that logs each retry against service.
func (cfg RetryConfig) WithLogger(service, operation string) RetryConfig {
	cfg.OnRetry = RetryLogger(service, operation)
	return cfg
}

// Do calls fn until it succeeds, returns a non-transient error, ctx ends or
// the attempts run out. Running out yields an *ExhaustedError around the last
// failure.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		switch {
		case err == nil:
			return val, nil
		case ctx.Err() != nil, !retryable(err):
			return zero, err
		case attempt+1 >= cfg.MaxAttempts:
			return zero, &ExhaustedError{Attempts: cfg.MaxAttempts, Err: err}
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}
		if !sleep(ctx, waitFor(attempt, cfg, err)) {
			return zero, err
		}
	}
}

// waitFor is the backoff for attempt, stretched to a service's Retry-After
// hint when it asks for longer. Hints are capped at MaxBackoff too.
func waitFor(attempt int, cfg RetryConfig, err error) time.Duration {
	d := computeBackoff(attempt, cfg)
	if hint := RetryAfter(err); hint > d {
		d = min(hint, cfg.MaxBackoff)
	}
	return d
}

// sleep reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	cfg.JitterFraction = max(cfg.JitterFraction, 0)
	return cfg
}

func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	d := math.Min(float64(cfg.InitialBackoff)*math.Pow(cfg.Multiplier, float64(attempt)), float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.JitterFraction
	}
	return time.Duration(math.Max(d, 0))
}

// RetryLogger returns an OnRetry callback that warns through the global logger.
func RetryLogger(service, operation string) func(int, error) {
	return func(retry int, err error) {
		fields := []zap.Field{
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("retry", retry),
			zap.String("class", ClassifyError(err)),
			zap.Error(err),
		}
		if hint := RetryAfter(err); hint > 0 {
			fields = append(fields, zap.Duration("retry_after", hint))
		}
		zap.L().Warn("resilience: retrying", fields...)
	}
}
