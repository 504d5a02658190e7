package ocr

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
)

// Guarded wraps a Client with a rate limiter, retries and a circuit breaker.
// Each retry waits for the limiter again.
type Guarded struct {
	next    Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps next. A nil limiter or breaker disables that guard.
func NewGuarded(next Client, limiter *rate.Limiter, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Guarded {
	return &Guarded{next: next, limiter: limiter, retry: retry, breaker: breaker}
}

// LimiterFromConfig builds the extraction rate limiter. A zero rate means
// unlimited and returns nil.
func LimiterFromConfig(c config.ExtractionConfig) *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), max(c.Burst, 1))
}

// Name returns the wrapped provider's name.
func (g *Guarded) Name() string { return g.next.Name() }

// Extract calls the wrapped client. Unsupported files fail without retry.
func (g *Guarded) Extract(ctx context.Context, doc Document) (*model.RawExtraction, error) {
	if _, err := DetectMIME(doc); err != nil {
		return nil, err
	}

	retry := g.retry.WithLogger(g.next.Name(), "extract")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.RawExtraction, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "ocr: rate limiter")
			}
		}
		return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*model.RawExtraction, error) {
			return g.next.Extract(ctx, doc)
		})
	})
}
