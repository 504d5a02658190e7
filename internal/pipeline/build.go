package pipeline

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/assemble"
	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/cost"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	"github.com/wheelerbb/gcp-invoice-intel/internal/metrics"
	"github.com/wheelerbb/gcp-invoice-intel/internal/normalize"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
	"github.com/wheelerbb/gcp-invoice-intel/internal/refine"
	"github.com/wheelerbb/gcp-invoice-intel/internal/resilience"
	"github.com/wheelerbb/gcp-invoice-intel/internal/sink"
	"github.com/wheelerbb/gcp-invoice-intel/pkg/anthropic"
)

// NewRefineClient creates the refinement provider named by cfg. Provider
// "none" returns a nil client, which makes the refinement stage skip.
func NewRefineClient(cfg config.RefinementConfig) (refine.Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, eris.New("pipeline: anthropic refinement requires an API key")
		}
		api := anthropic.NewClient(cfg.AnthropicKey)
		return refine.NewAnthropicClient(api, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, eris.New("pipeline: openai refinement requires an API key")
		}
		return refine.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("pipeline: unknown refinement provider %q", cfg.Provider)
	}
}

// FromConfig wires a Processor from the application config. Extraction is
// rate limited, retried and guarded by a circuit breaker; refinement is
// retried and guarded by its own breaker.
func FromConfig(cfg *config.Config, l ledger.Ledger, s sink.Sink, m *metrics.Metrics) (*Processor, error) {
	retry := resilience.FromConfig(cfg.Retry)
	breakers := resilience.NewServiceBreakers(resilience.BreakerFromConfig(cfg.Circuit))
	breakers.Observe(func(service string, to resilience.CircuitState) {
		m.SetCircuitState(service, int(to))
	})

	base, err := ocr.New(cfg.Extraction)
	if err != nil {
		return nil, err
	}
	extractor := ocr.NewGuarded(base, ocr.LimiterFromConfig(cfg.Extraction), retry, breakers.Get(base.Name()))

	client, err := NewRefineClient(cfg.Refinement)
	if err != nil {
		return nil, err
	}
	var refiner *refine.Stage
	if client != nil {
		refiner = refine.NewStage(client, retry, breakers.Get(client.Name()))
	}

	normOpts, err := normalize.OptionsFromConfig(cfg.Normalize)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: normalize tolerance")
	}

	zap.L().Debug("pipeline: configured",
		zap.String("extractor", extractor.Name()),
		zap.String("refinement", cfg.Refinement.Provider),
		zap.String("tolerance", normOpts.Tolerance.String()),
	)

	return New(Deps{
		Extractor:  extractor,
		Normalizer: normalize.New(normOpts),
		Refiner:    refiner,
		Assembler:  assemble.FromConfig(cfg.Assemble),
		Ledger:     l,
		Sink:       s,
		Metrics:    m,
		Cost:       cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing)),
		Retry:      retry,
		Timeout:    time.Duration(cfg.Pipeline.ProcessingTimeoutSecs) * time.Second,
	}), nil
}
