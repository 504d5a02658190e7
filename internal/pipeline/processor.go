// Package pipeline runs one invoice file through extraction, normalization,
// refinement, assembly and persistence under the idempotency ledger.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/assemble"
	"github.com/wheelerbb/gcp-invoice-intel/internal/cost"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	"github.com/wheelerbb/gcp-invoice-intel/internal/metrics"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/normalize"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
	"github.com/wheelerbb/gcp-invoice-intel/internal/refine"
	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
	"github.com/wheelerbb/gcp-invoice-intel/internal/sink"
)

// Status is the outcome of Process.
type Status string

// Process outcomes.
const (
	StatusProcessed           Status = "processed"
	StatusAlreadyProcessed    Status = "already_processed"
	StatusDuplicateInProgress Status = "duplicate_in_progress"
	StatusFailed              Status = "failed"
)

const maxGenerations = 10000

// Options selects how one file is processed.
type Options struct {
	Mode           model.Mode
	SkipRefinement bool
	// Force reprocesses content that already succeeded in this mode.
	Force bool
	// StoragePath records where the file came from.
	StoragePath string
}

// Result describes one Process call.
type Result struct {
	Status           Status              `json:"status"`
	Fingerprint      string              `json:"fingerprint"`
	Mode             model.Mode          `json:"processing_mode"`
	File             string              `json:"file"`
	AttemptID        string              `json:"attempt_id,omitempty"`
	Attempt          int                 `json:"attempt,omitempty"`
	RecordKey        string              `json:"record_key,omitempty"`
	Provider         string              `json:"provider,omitempty"`
	Refinement       refine.Status       `json:"refinement_status,omitempty"`
	RefinementReason string              `json:"refinement_reason,omitempty"`
	RefinementCost   float64             `json:"refinement_cost_usd,omitempty"`
	Unresolved       []string            `json:"unresolved_fields,omitempty"`
	Draft            *model.InvoiceDraft `json:"draft,omitempty"`
	Error            string              `json:"error,omitempty"`
	Stages           map[string]int64    `json:"stage_ms,omitempty"`
	DurationMs       int64               `json:"duration_ms"`
}

// Deps are the collaborators a Processor drives.
type Deps struct {
	Extractor  ocr.Client
	Normalizer *normalize.Normalizer
	Refiner    *refine.Stage
	Assembler  *assemble.Assembler
	Ledger     ledger.Ledger
	Sink       sink.Sink
	Metrics    *metrics.Metrics
	// Cost prices refinement usage. Nil prices everything at zero.
	Cost *cost.Calculator
	// Retry governs sink writes. Extraction and refinement carry their own.
	Retry resilience.RetryConfig
	// Timeout bounds one attempt. Zero means no limit.
	Timeout time.Duration
}

// Processor runs single-file attempts. It is safe for concurrent use.
type Processor struct {
	extractor  ocr.Client
	normalizer *normalize.Normalizer
	refiner    *refine.Stage
	assembler  *assemble.Assembler
	ledger     ledger.Ledger
	sink       sink.Sink
	metrics    *metrics.Metrics
	cost       *cost.Calculator
	retry      resilience.RetryConfig
	timeout    time.Duration
}

// New creates a Processor.
func New(d Deps) *Processor {
	if d.Normalizer == nil {
		d.Normalizer = normalize.New(normalize.Options{})
	}
	if d.Assembler == nil {
		d.Assembler = assemble.New(500)
	}
	return &Processor{
		extractor:  d.Extractor,
		normalizer: d.Normalizer,
		refiner:    d.Refiner,
		assembler:  d.Assembler,
		ledger:     d.Ledger,
		sink:       d.Sink,
		metrics:    d.Metrics,
		cost:       d.Cost,
		retry:      d.Retry,
		timeout:    d.Timeout,
	}
}

// Process runs one attempt for doc. Idempotence conflicts return a result
// with a nil error. A failed attempt returns both the result and the cause.
// When ctx is canceled or the processing timeout expires the attempt stays
// pending and the context error is returned.
func (p *Processor) Process(ctx context.Context, doc ocr.Document, opts Options) (*Result, error) {
	start := time.Now()
	if _, err := model.ParseMode(string(opts.Mode)); err != nil {
		return nil, eris.Wrap(err, "pipeline: process")
	}

	fp := ledger.FingerprintBytes(doc.Content)
	res := &Result{
		Fingerprint: fp,
		Mode:        opts.Mode,
		File:        doc.Name,
		Stages:      make(map[string]int64),
	}
	log := zap.L().With(
		zap.String("fingerprint", fp),
		zap.String("file", doc.Name),
		zap.String("mode", string(opts.Mode)),
	)

	finish := func(status Status) *Result {
		res.Status = status
		res.DurationMs = time.Since(start).Milliseconds()
		p.metrics.RecordAttempt(string(opts.Mode), string(status))
		p.metrics.ObserveStage(metrics.StageTotal, time.Since(start))
		return res
	}

	// Ledger gate.
	stageStart := time.Now()
	token, status, err := p.begin(ctx, fp, doc, opts)
	p.track(res, metrics.StageLedger, stageStart)
	if err != nil {
		return nil, err
	}
	if token == nil {
		p.metrics.RecordConflict(string(status))
		log.Info("pipeline: skipping file", zap.String("status", string(status)))
		return finish(status), nil
	}
	res.AttemptID = token.AttemptID
	res.Attempt = token.Attempt
	log = log.With(zap.String("attempt_id", token.AttemptID), zap.Int("attempt", token.Attempt))
	log.Info("pipeline: attempt started")

	parent := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// fail records a terminal failure. Cancellation of the caller's context
	// and the processing timeout both abort the attempt instead: it stays
	// pending for the stale reclaim.
	fail := func(stage string, cause error) (*Result, error) {
		if parent.Err() != nil {
			log.Warn("pipeline: attempt canceled, leaving pending", zap.String("stage", stage))
			res.Error = parent.Err().Error()
			res.DurationMs = time.Since(start).Milliseconds()
			return res, parent.Err()
		}
		if errors.Is(cause, context.DeadlineExceeded) && ctx.Err() != nil {
			err := eris.Wrapf(ctx.Err(), "pipeline: processing timeout of %s exceeded", p.timeout)
			log.Warn("pipeline: attempt timed out, leaving pending", zap.String("stage", stage), zap.Error(err))
			res.Error = err.Error()
			res.DurationMs = time.Since(start).Milliseconds()
			return res, err
		}
		res.Error = cause.Error()
		log.Error("pipeline: attempt failed",
			zap.String("stage", stage),
			zap.String("class", resilience.ClassifyError(cause)),
			zap.Error(cause),
		)
		outcome := ledger.Outcome{Status: model.FileStatusFailed, Err: cause}
		if cerr := p.ledger.Complete(context.WithoutCancel(parent), token, outcome); cerr != nil {
			log.Error("pipeline: mark attempt failed", zap.Error(cerr))
		}
		return finish(StatusFailed), cause
	}

	// Extraction.
	stageStart = time.Now()
	raw, err := p.extractor.Extract(ctx, doc)
	p.track(res, metrics.StageExtract, stageStart)
	if err != nil {
		return fail(metrics.StageExtract, err)
	}
	res.Provider = raw.Provider
	log.Debug("pipeline: extracted",
		zap.String("provider", raw.Provider),
		zap.Int("entities", len(raw.Entities)),
		zap.Int("cells", len(raw.LineItemCells)),
		zap.Int("pages", raw.PageCount),
	)

	// Normalization.
	stageStart = time.Now()
	draft := p.normalizer.Normalize(*raw)
	p.track(res, metrics.StageNormalize, stageStart)

	// Refinement is optional; its failure never blocks persistence.
	stageStart = time.Now()
	refined := p.refiner.Run(ctx, draft, raw.Text, opts.SkipRefinement)
	p.track(res, metrics.StageRefine, stageStart)
	res.Refinement = refined.Status
	res.RefinementReason = refined.Reason
	p.metrics.RecordRefinement(string(refined.Status))
	if refined.Status == refine.StatusFailed && parent.Err() != nil {
		return fail(metrics.StageRefine, refined.Err)
	}

	refinementUsed := false
	if refined.Status == refine.StatusSuccess {
		stageStart = time.Now()
		draft = refine.Reconcile(draft, refined.Text, refine.Options{
			Tolerance:   p.normalizer.Tolerance(),
			DateFormats: p.normalizer.DateFormats(),
		})
		p.track(res, metrics.StageReconcile, stageStart)
		refinementUsed = true
		res.RefinementCost = p.cost.Refinement(refined.Model, refined.Usage.InputTokens, refined.Usage.OutputTokens)
		p.metrics.AddRefinementCost(refined.Model, res.RefinementCost)
		log.Debug("pipeline: refinement applied",
			zap.String("model", refined.Model),
			zap.Int64("input_tokens", refined.Usage.InputTokens),
			zap.Int64("output_tokens", refined.Usage.OutputTokens),
			zap.Float64("cost_usd", res.RefinementCost),
		)
	}
	res.Draft = &draft
	res.Unresolved = draft.UnresolvedFields()

	// Assembly.
	stageStart = time.Now()
	rec := token.FileRecord()
	rec.RefinementUsed = refinementUsed
	if rec.Generation, err = p.generation(ctx, fp, opts); err != nil {
		return fail(metrics.StageAssemble, err)
	}
	rs, err := p.assembler.Assemble(draft, rec)
	p.track(res, metrics.StageAssemble, stageStart)
	if err != nil {
		return fail(metrics.StageAssemble, err)
	}
	res.RecordKey = rs.RecordKey

	// Persistence.
	stageStart = time.Now()
	err = resilience.Do(ctx, p.retry.WithLogger("sink", "write"), func(ctx context.Context) error {
		return p.sink.Write(ctx, rs)
	})
	p.track(res, metrics.StagePersist, stageStart)
	if err != nil {
		return fail(metrics.StagePersist, err)
	}

	outcome := ledger.Outcome{
		Status:         model.FileStatusSucceeded,
		RecordKeys:     sink.RecordKeys(rs),
		RefinementUsed: refinementUsed,
	}
	if err := p.ledger.Complete(context.WithoutCancel(parent), token, outcome); err != nil {
		// The rows are written; the pending attempt is reclaimed once stale.
		log.Error("pipeline: complete attempt", zap.Error(err))
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		return res, eris.Wrap(err, "pipeline: complete attempt")
	}

	p.metrics.RecordUnresolved(res.Unresolved)
	log.Info("pipeline: attempt succeeded",
		zap.String("record_key", rs.RecordKey),
		zap.Int("line_items", len(rs.LineItems)),
		zap.Bool("refinement_used", refinementUsed),
		zap.Strings("unresolved", res.Unresolved),
	)
	return finish(StatusProcessed), nil
}

// begin opens an attempt. A nil token with a status means the ledger
// short-circuited the file.
func (p *Processor) begin(ctx context.Context, fp string, doc ocr.Document, opts Options) (*ledger.AttemptToken, Status, error) {
	if !opts.Force {
		done, err := p.ledger.HasSucceeded(ctx, opts.Mode, fp)
		if err != nil {
			return nil, "", eris.Wrap(err, "pipeline: check ledger")
		}
		if done {
			return nil, StatusAlreadyProcessed, nil
		}
	}

	meta := ledger.AttemptMeta{
		OriginalFilename: doc.Name,
		StoragePath:      opts.StoragePath,
		FileSize:         int64(len(doc.Content)),
	}
	token, err := p.ledger.BeginAttempt(ctx, fp, opts.Mode, meta, opts.Force)
	switch {
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		return nil, StatusAlreadyProcessed, nil
	case errors.Is(err, ledger.ErrDuplicateInProgress):
		return nil, StatusDuplicateInProgress, nil
	case err != nil:
		return nil, "", eris.Wrap(err, "pipeline: begin attempt")
	}
	return token, "", nil
}

// generation counts the succeeded attempts a forced run supersedes. Every
// attempt of the same run sees the same count and so the same record key.
func (p *Processor) generation(ctx context.Context, fp string, opts Options) (int, error) {
	if !opts.Force {
		return 0, nil
	}
	done, err := p.ledger.List(ctx, opts.Mode, ledger.Filter{
		Fingerprint: fp,
		Status:      model.FileStatusSucceeded,
		Limit:       maxGenerations,
	})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: count earlier runs")
	}
	return len(done), nil
}

func (p *Processor) track(res *Result, stage string, start time.Time) {
	d := time.Since(start)
	res.Stages[stage] = d.Milliseconds()
	p.metrics.ObserveStage(stage, d)
}
