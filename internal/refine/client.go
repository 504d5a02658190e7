// Package refine runs the optional generative refinement pass and merges its
// proposal into an invoice draft.
package refine

import (
	"context"
	"fmt"
	"time"

	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
)

// Client sends extracted text plus the current draft to a generative model.
type Client interface {
	Refine(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Request carries the extraction text and a summary of the draft so the model
// can propose corrections.
type Request struct {
	Text         string
	DraftSummary string
}

// Response is the model's raw textual proposal.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage tracks token consumption for a refinement call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ErrorKind classifies refinement service failures.
type ErrorKind string

// Refinement error kinds.
const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth"
	KindTransient   ErrorKind = "transient"
	KindService     ErrorKind = "service"
)

// ServiceError is returned by Client implementations.
type ServiceError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("refine: %s %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("refine: %s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// classify wraps a provider error in a ServiceError, marking rate limits and
// server-side failures transient. retryAfter is the provider's Retry-After
// header, possibly empty.
func classify(provider string, status int, retryAfter string, err error) error {
	se := &ServiceError{Provider: provider, StatusCode: status, Err: err}
	switch {
	case status == 429:
		se.Kind = KindRateLimited
	case status == 401 || status == 403:
		se.Kind = KindAuth
		return se
	case resilience.IsTransientHTTPStatus(status), status == 0 && resilience.IsTransient(err):
		se.Kind = KindTransient
	default:
		se.Kind = KindService
		return se
	}
	te := resilience.NewTransientError(se, status)
	te.RetryAfter = resilience.ParseRetryAfter(retryAfter, time.Now())
	return te
}
