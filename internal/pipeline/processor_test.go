package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wheelerbb/gcp-invoice-intel/internal/assemble"
	"github.com/wheelerbb/gcp-invoice-intel/internal/cost"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	ledgermocks "github.com/wheelerbb/gcp-invoice-intel/internal/ledger/mocks"
	"github.com/wheelerbb/gcp-invoice-intel/internal/metrics"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
	ocrmocks "github.com/wheelerbb/gcp-invoice-intel/internal/ocr/mocks"
	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
	"github.com/wheelerbb/gcp-invoice-intel/internal/refine"
	refinemocks "github.com/wheelerbb/gcp-invoice-intel/internal/refine/mocks"
	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
	"github.com/wheelerbb/gcp-invoice-intel/internal/sink"
	sinkmocks "github.com/wheelerbb/gcp-invoice-intel/internal/sink/mocks"
)

var fastRetry = resilience.RetryConfig{
	MaxAttempts:    2,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
}

func invoiceDoc() ocr.Document {
	return ocr.Document{Name: "acme-1001.pdf", Content: []byte("%PDF-1.7 acme invoice 1001"), MIMEType: ocr.MIMEPDF}
}

func rawExtraction() *model.RawExtraction {
	return &model.RawExtraction{
		Text:     "Invoice INV-1001\nSubtotal 90.00\nTax 10.00\nTotal 100.00",
		Provider: "documentai",
		Entities: []model.Entity{
			{Kind: "invoice_id", Value: "INV-1001", Confidence: 0.97},
			{Kind: "net_amount", Value: "90.00", Confidence: 0.9},
			{Kind: "total_tax_amount", Value: "10.00", Confidence: 0.9},
			{Kind: "total_amount", Value: "100.00", Confidence: 0.95},
			{Kind: "currency", Value: "USD", Confidence: 0.9},
		},
		PageCount: 1,
	}
}

type harness struct {
	extractor *ocrmocks.MockClient
	refiner   *refinemocks.MockClient
	ledger    *ledger.MemoryLedger
	sink      *sink.MemoryStore
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	return &harness{
		extractor: ocrmocks.NewMockClient(t),
		refiner:   refinemocks.NewMockClient(t),
		ledger:    ledger.NewMemory(ledger.Options{}),
		sink:      sink.NewMemory(),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
}

func (h *harness) processor(withRefiner bool) *pipeline.Processor {
	var stage *refine.Stage
	if withRefiner {
		stage = refine.NewStage(h.refiner, fastRetry, nil)
	}
	return pipeline.New(pipeline.Deps{
		Extractor: h.extractor,
		Refiner:   stage,
		Ledger:    h.ledger,
		Sink:      h.sink,
		Metrics:   h.metrics,
		Cost:      cost.NewCalculator(cost.Rates{Models: map[string]cost.ModelRate{"fake-1": {Input: 1, Output: 2}}}),
		Retry:     fastRetry,
	})
}

func (h *harness) attempts(t *testing.T, fp string) []model.FileRecord {
	t.Helper()
	recs, err := h.ledger.List(context.Background(), model.ModeAdhoc, ledger.Filter{Fingerprint: fp})
	require.NoError(t, err)
	return recs
}

func TestProcess_SecondRunIsAlreadyProcessed(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	p := h.processor(false)
	ctx := context.Background()

	first, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessed, first.Status)
	assert.NotEmpty(t, first.RecordKey)
	assert.Equal(t, refine.StatusSkipped, first.Refinement)
	assert.Equal(t, ledger.FingerprintBytes(invoiceDoc().Content), first.Fingerprint)

	second, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusAlreadyProcessed, second.Status)
	assert.Empty(t, second.AttemptID)

	assert.Equal(t, 1, h.sink.Len())
	recs := h.attempts(t, first.Fingerprint)
	require.Len(t, recs, 1)
	assert.Equal(t, model.FileStatusSucceeded, recs[0].Status)
	assert.Equal(t, []string{first.RecordKey}, recs[0].RecordKeys)
	assert.Equal(t, "acme-1001.pdf", recs[0].OriginalFilename)

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Attempts.WithLabelValues("adhoc", "processed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.LedgerConflicts.WithLabelValues("already_processed")), 0)
}

func TestProcess_SameContentDifferentNameIsDuplicate(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	p := h.processor(false)

	_, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)

	renamed := invoiceDoc()
	renamed.Name = "copy of acme.pdf"
	res, err := p.Process(context.Background(), renamed, pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusAlreadyProcessed, res.Status)
}

func TestProcess_ModesAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Twice()
	p := h.processor(false)

	for _, mode := range []model.Mode{model.ModeAdhoc, model.ModeProduction} {
		res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: mode})
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusProcessed, res.Status, mode)
	}
	assert.Equal(t, 2, h.sink.Len())
}

func TestProcess_ForceReprocesses(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Twice()
	p := h.processor(false)
	ctx := context.Background()

	first, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	second, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc, Force: true})
	require.NoError(t, err)

	assert.Equal(t, pipeline.StatusProcessed, second.Status)
	assert.Equal(t, 2, second.Attempt)
	assert.NotEqual(t, first.RecordKey, second.RecordKey)
	assert.Equal(t, 2, h.sink.Len())
}

func TestProcess_DuplicateInProgress(t *testing.T) {
	h := newHarness(t)
	p := h.processor(false)
	ctx := context.Background()

	fp := ledger.FingerprintBytes(invoiceDoc().Content)
	_, err := h.ledger.BeginAttempt(ctx, fp, model.ModeAdhoc, ledger.AttemptMeta{}, false)
	require.NoError(t, err)

	res, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusDuplicateInProgress, res.Status)
	assert.Equal(t, 0, h.sink.Len())
}

func TestProcess_RefinementFillsUnresolvedVendor(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	h.refiner.On("Name").Return("fake")
	h.refiner.On("Refine", mock.Anything, mock.Anything).Return(&refine.Response{
		Text:  `{"vendor_name": "Acme Co", "total": "150.00"}`,
		Model: "fake-1",
		Usage: refine.Usage{InputTokens: 1000000, OutputTokens: 500000},
	}, nil).Once()
	p := h.processor(true)

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)

	assert.Equal(t, refine.StatusSuccess, res.Refinement)
	require.NotNil(t, res.Draft)
	assert.Equal(t, "Acme Co", res.Draft.VendorName.Value)
	assert.Equal(t, model.ProvenanceRefined, res.Draft.VendorName.Provenance)
	assert.Equal(t, "100", res.Draft.Total.Value.String(), "consistent extracted total is kept")
	assert.NotContains(t, res.Unresolved, "vendor_name")
	assert.InDelta(t, 2.0, res.RefinementCost, 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(h.metrics.RefinementCost.WithLabelValues("fake-1")), 1e-9)

	recs := h.attempts(t, res.Fingerprint)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].RefinementUsed)

	headers, err := h.sink.ListHeaders(context.Background(), sink.HeaderQuery{})
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.True(t, headers[0].RefinementUsed)
	require.NotNil(t, headers[0].VendorName)
	assert.Equal(t, "Acme Co", *headers[0].VendorName)
}

func TestProcess_SkipRefinementFlag(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	p := h.processor(true)

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc, SkipRefinement: true})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessed, res.Status)
	assert.Equal(t, refine.StatusSkipped, res.Refinement)
	h.refiner.AssertNotCalled(t, "Refine", mock.Anything, mock.Anything)
}

func TestProcess_RefinementFailureDoesNotBlockPersistence(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	h.refiner.On("Name").Return("fake")
	h.refiner.On("Refine", mock.Anything, mock.Anything).
		Return(nil, resilience.Permanent(errors.New("invalid api key"))).Once()
	p := h.processor(true)

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessed, res.Status)
	assert.Equal(t, refine.StatusFailed, res.Refinement)
	assert.Equal(t, 1, h.sink.Len())

	recs := h.attempts(t, res.Fingerprint)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].RefinementUsed)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Refinements.WithLabelValues("failed")), 0)
}

func TestProcess_UnsupportedFileFails(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, ocr.ErrUnsupportedFileType).Once()
	p := h.processor(false)

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrUnsupportedFileType)
	assert.Equal(t, pipeline.StatusFailed, res.Status)
	assert.NotEmpty(t, res.Error)

	recs := h.attempts(t, res.Fingerprint)
	require.Len(t, recs, 1)
	assert.Equal(t, model.FileStatusFailed, recs[0].Status)
	assert.Equal(t, 0, h.sink.Len())
}

func TestProcess_FailedAttemptCanBeRetried(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).
		Return(nil, errors.New("processor unavailable")).Once()
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	p := h.processor(false)
	ctx := context.Background()

	first, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, first.Status)

	second, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessed, second.Status)
	assert.Equal(t, 2, second.Attempt)
	assert.Len(t, h.attempts(t, second.Fingerprint), 2)
}

func TestProcess_CancellationLeavesPending(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.extractor.On("Extract", mock.Anything, mock.Anything).
		Return(func(context.Context, ocr.Document) (*model.RawExtraction, error) {
			cancel()
			return nil, context.Canceled
		}).Once()
	p := h.processor(false)

	res, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, pipeline.StatusFailed, res.Status)

	recs := h.attempts(t, res.Fingerprint)
	require.Len(t, recs, 1)
	assert.Equal(t, model.FileStatusPending, recs[0].Status)
}

func TestProcess_TimeoutLeavesPending(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ ocr.Document) (*model.RawExtraction, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).Once()
	p := pipeline.New(pipeline.Deps{
		Extractor: h.extractor,
		Ledger:    h.ledger,
		Sink:      h.sink,
		Retry:     fastRetry,
		Timeout:   20 * time.Millisecond,
	})

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, pipeline.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "processing timeout")

	recs := h.attempts(t, res.Fingerprint)
	require.Len(t, recs, 1)
	assert.Equal(t, model.FileStatusPending, recs[0].Status)
	assert.Empty(t, recs[0].Error)
	assert.Equal(t, 0, h.sink.Len())
}

func TestProcess_AssemblyErrorMarksFailed(t *testing.T) {
	h := newHarness(t)
	raw := rawExtraction()
	raw.LineItemCells = []model.LineItemCell{
		{Row: 1, Column: 0, Kind: "line_item/description", Text: "Widget", Confidence: 0.9},
		{Row: 1, Column: 1, Kind: "line_item/amount", Text: "45.00", Confidence: 0.9},
		{Row: 2, Column: 0, Kind: "line_item/description", Text: "Gadget", Confidence: 0.9},
		{Row: 2, Column: 1, Kind: "line_item/amount", Text: "45.00", Confidence: 0.9},
	}
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(raw, nil).Once()
	p := pipeline.New(pipeline.Deps{
		Extractor: h.extractor,
		Assembler: assemble.New(1),
		Ledger:    h.ledger,
		Sink:      h.sink,
		Retry:     fastRetry,
	})

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	var asmErr *assemble.AssemblyError
	require.ErrorAs(t, err, &asmErr)
	assert.Equal(t, pipeline.StatusFailed, res.Status)
	assert.Equal(t, 0, h.sink.Len())
	assert.Equal(t, model.FileStatusFailed, h.attempts(t, res.Fingerprint)[0].Status)
}

func TestProcess_SinkRetriesTransientErrors(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	sk := sinkmocks.NewMockSink(t)
	sk.On("Write", mock.Anything, mock.Anything).
		Return(resilience.NewTransientError(errors.New("connection reset"), 0)).Once()
	sk.On("Write", mock.Anything, mock.Anything).Return(nil).Once()
	p := pipeline.New(pipeline.Deps{Extractor: h.extractor, Ledger: h.ledger, Sink: sk, Retry: fastRetry})

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessed, res.Status)
}

func TestProcess_SchemaMismatchIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	sk := sinkmocks.NewMockSink(t)
	mismatch := resilience.Permanent(&sink.SchemaMismatchError{Kind: model.RecordKindHeader, Err: errors.New("bad total")})
	sk.On("Write", mock.Anything, mock.Anything).Return(mismatch).Once()
	p := pipeline.New(pipeline.Deps{Extractor: h.extractor, Ledger: h.ledger, Sink: sk, Retry: fastRetry})

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	var schemaErr *sink.SchemaMismatchError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, pipeline.StatusFailed, res.Status)
	assert.Equal(t, model.FileStatusFailed, h.attempts(t, res.Fingerprint)[0].Status)
}

func TestProcess_CompleteFailureAfterWriteIsReported(t *testing.T) {
	extractor := ocrmocks.NewMockClient(t)
	extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Once()
	l := ledgermocks.NewMockLedger(t)
	token := &ledger.AttemptToken{
		AttemptID:   "att-1",
		Fingerprint: ledger.FingerprintBytes(invoiceDoc().Content),
		Attempt:     1,
		Mode:        model.ModeAdhoc,
		StartedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	l.On("HasSucceeded", mock.Anything, model.ModeAdhoc, token.Fingerprint).Return(false, nil).Once()
	l.On("BeginAttempt", mock.Anything, token.Fingerprint, model.ModeAdhoc, mock.Anything, false).Return(token, nil).Once()
	l.On("Complete", mock.Anything, token, mock.MatchedBy(func(o ledger.Outcome) bool {
		return o.Status == model.FileStatusSucceeded && len(o.RecordKeys) == 1
	})).Return(errors.New("connection lost")).Once()
	st := sink.NewMemory()
	p := pipeline.New(pipeline.Deps{Extractor: extractor, Ledger: l, Sink: st, Retry: fastRetry})

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
	assert.Equal(t, "att-1", res.AttemptID)
	assert.Equal(t, 1, st.Len(), "rows stay written")
}

// lostCompleteLedger drops the next n successful Complete calls, as when the
// ledger connection fails after the rows are written.
type lostCompleteLedger struct {
	*ledger.MemoryLedger
	lose int
}

func (l *lostCompleteLedger) Complete(ctx context.Context, token *ledger.AttemptToken, outcome ledger.Outcome) error {
	if outcome.Status == model.FileStatusSucceeded && l.lose > 0 {
		l.lose--
		return errors.New("connection lost")
	}
	return l.MemoryLedger.Complete(ctx, token, outcome)
}

func newLostCompleteLedger(now *time.Time) *lostCompleteLedger {
	return &lostCompleteLedger{MemoryLedger: ledger.NewMemory(ledger.Options{
		StaleAfter: time.Minute,
		Now:        func() time.Time { return *now },
	})}
}

func TestProcess_RetryAfterLostCompleteWritesRowsOnce(t *testing.T) {
	extractor := ocrmocks.NewMockClient(t)
	extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Twice()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newLostCompleteLedger(&now)
	l.lose = 1
	st := sink.NewMemory()
	p := pipeline.New(pipeline.Deps{Extractor: extractor, Ledger: l, Sink: st, Retry: fastRetry})
	ctx := context.Background()

	first, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.Error(t, err)
	require.NotEmpty(t, first.RecordKey)

	now = now.Add(2 * time.Minute)
	second, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessed, second.Status)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, first.RecordKey, second.RecordKey)

	assert.Equal(t, 2, st.Writes())
	headers, err := st.ListHeaders(ctx, sink.HeaderQuery{Mode: model.ModeAdhoc})
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Equal(t, first.AttemptID, headers[0].LedgerAttemptID, "first write kept")

	recs, err := l.List(ctx, model.ModeAdhoc, ledger.Filter{Fingerprint: first.Fingerprint})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, model.FileStatusSucceeded, recs[0].Status)
	assert.Equal(t, []string{first.RecordKey}, recs[0].RecordKeys)
	assert.Equal(t, model.FileStatusFailed, recs[1].Status)
	assert.Equal(t, ledger.AbandonedError, recs[1].Error)
}

func TestProcess_ForcedRetryAfterLostCompleteReusesKey(t *testing.T) {
	extractor := ocrmocks.NewMockClient(t)
	extractor.On("Extract", mock.Anything, mock.Anything).Return(rawExtraction(), nil).Times(3)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newLostCompleteLedger(&now)
	st := sink.NewMemory()
	p := pipeline.New(pipeline.Deps{Extractor: extractor, Ledger: l, Sink: st, Retry: fastRetry})
	ctx := context.Background()
	force := pipeline.Options{Mode: model.ModeAdhoc, Force: true}

	original, err := p.Process(ctx, invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.NoError(t, err)

	l.lose = 1
	lost, err := p.Process(ctx, invoiceDoc(), force)
	require.Error(t, err)
	assert.NotEqual(t, original.RecordKey, lost.RecordKey)

	now = now.Add(2 * time.Minute)
	retried, err := p.Process(ctx, invoiceDoc(), force)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusProcessed, retried.Status)
	assert.Equal(t, lost.RecordKey, retried.RecordKey)
	assert.Equal(t, 2, st.Len(), "original run plus one forced run")
}

func TestProcess_LedgerErrorIsReturned(t *testing.T) {
	l := ledgermocks.NewMockLedger(t)
	l.On("HasSucceeded", mock.Anything, model.ModeAdhoc, mock.Anything).Return(false, errors.New("database is locked")).Once()
	p := pipeline.New(pipeline.Deps{Extractor: ocrmocks.NewMockClient(t), Ledger: l, Sink: sink.NewMemory()})

	res, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: model.ModeAdhoc})
	require.Error(t, err)
	assert.Nil(t, res)
}

func TestProcess_RejectsUnknownMode(t *testing.T) {
	p := pipeline.New(pipeline.Deps{Ledger: ledger.NewMemory(ledger.Options{}), Sink: sink.NewMemory()})
	_, err := p.Process(context.Background(), invoiceDoc(), pipeline.Options{Mode: "staging"})
	require.Error(t, err)
}
