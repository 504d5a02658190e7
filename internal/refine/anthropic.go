package refine

import (
	"context"

	"github.com/wheelerbb/gcp-invoice-intel/pkg/anthropic"
)

// AnthropicClient refines drafts with a Claude model.
type AnthropicClient struct {
	api         anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicClient wraps an anthropic.Client.
func NewAnthropicClient(api anthropic.Client, model string, maxTokens int64, temperature float64) *AnthropicClient {
	return &AnthropicClient{api: api, model: model, maxTokens: maxTokens, temperature: temperature}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Refine sends one message and returns the concatenated text reply.
func (c *AnthropicClient) Refine(ctx context.Context, req Request) (*Response, error) {
	temp := c.temperature
	resp, err := c.api.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(req)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(c.Name(), anthropic.StatusCode(err), anthropic.RetryAfter(err), err)
	}
	resp.Usage.LogUsage(c.model, "refinement")

	return &Response{
		Text:  resp.Text(),
		Model: resp.Model,
		Usage: Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}
