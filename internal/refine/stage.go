package refine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
)

// Status is the outcome of the refinement stage.
type Status string

// Refinement stage outcomes.
const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result is what the stage produced. A failed result never blocks
// persistence; the pipeline continues with the unrefined draft.
type Result struct {
	Status   Status
	Text     string
	Model    string
	Usage    Usage
	Reason   string
	Err      error
	Duration time.Duration
}

// Stage runs the optional refinement call under retry and circuit breaking.
type Stage struct {
	client  Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewStage creates a refinement stage. A nil client makes every run skip.
func NewStage(client Client, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Stage {
	return &Stage{client: client, retry: retry, breaker: breaker}
}

// Enabled reports whether a provider is configured.
func (s *Stage) Enabled() bool {
	return s != nil && s.client != nil
}

// Run asks the provider for corrections to draft. skip forces a skipped
// result without calling the provider.
func (s *Stage) Run(ctx context.Context, draft model.InvoiceDraft, text string, skip bool) Result {
	start := time.Now()
	switch {
	case skip:
		return Result{Status: StatusSkipped, Reason: "disabled for this attempt"}
	case !s.Enabled():
		return Result{Status: StatusSkipped, Reason: "no refinement provider configured"}
	case draft.HasDiagnostic(model.DiagEmptyExtraction):
		return Result{Status: StatusSkipped, Reason: "nothing extracted"}
	}

	summary, err := Summarize(draft)
	if err != nil {
		return Result{Status: StatusFailed, Err: err, Duration: time.Since(start)}
	}
	req := Request{Text: text, DraftSummary: summary}

	retry := s.retry.WithLogger(s.client.Name(), "refine")
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*Response, error) {
			return s.client.Refine(ctx, req)
		})
	})
	if err != nil {
		zap.L().Warn("refine: refinement failed, continuing with extracted draft",
			zap.String("provider", s.client.Name()),
			zap.String("class", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		return Result{Status: StatusFailed, Err: err, Duration: time.Since(start)}
	}

	return Result{
		Status:   StatusSuccess,
		Text:     resp.Text,
		Model:    resp.Model,
		Usage:    resp.Usage,
		Duration: time.Since(start),
	}
}
