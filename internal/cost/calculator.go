// Package cost prices refinement calls from their token usage.
package cost

import "github.com/wheelerbb/gcp-invoice-intel/internal/config"

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to pricing.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// Calculator computes costs for refinement usage. A nil *Calculator prices
// everything at zero.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Refinement computes the cost of one refinement call. Unknown models cost 0.
func (c *Calculator) Refinement(model string, input, output int64) float64 {
	if c == nil {
		return 0
	}
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Known reports whether model has a configured rate.
func (c *Calculator) Known(model string) bool {
	if c == nil {
		return false
	}
	_, ok := c.rates.Models[model]
	return ok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
			"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
			"gpt-4o":                     {Input: 2.50, Output: 10.00},
		},
	}
}

// RatesFromConfig layers configured prices over DefaultRates.
func RatesFromConfig(cfg config.PricingConfig) Rates {
	rates := DefaultRates()
	for name, p := range cfg.Models {
		rates.Models[name] = ModelRate{Input: p.Input, Output: p.Output}
	}
	return rates
}
