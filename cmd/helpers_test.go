//go:build !integration

package main

import (
	"context"
	"sync"

	"github.com/wheelerbb/gcp-invoice-intel/internal/config"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
)

// fakeProcessor records Process calls and answers with fn, or processed.
type fakeProcessor struct {
	mu    sync.Mutex
	names []string
	opts  []pipeline.Options
	fn    func(ctx context.Context, doc ocr.Document, opts pipeline.Options) (*pipeline.Result, error)
}

func (f *fakeProcessor) Process(ctx context.Context, doc ocr.Document, opts pipeline.Options) (*pipeline.Result, error) {
	f.mu.Lock()
	f.names = append(f.names, doc.Name)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, doc, opts)
	}
	return &pipeline.Result{Status: pipeline.StatusProcessed, File: doc.Name, Mode: opts.Mode}, nil
}

func (f *fakeProcessor) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func (f *fakeProcessor) options() []pipeline.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Options(nil), f.opts...)
}

// testConfig is a config that passes Validate("process") without network
// services.
func testConfig() *config.Config {
	c := &config.Config{}
	c.Store.Driver = "memory"
	c.Extraction.Provider = "text"
	c.Extraction.Text.Engine = "native"
	c.Refinement.Provider = "none"
	c.Refinement.MaxTokens = 1024
	c.Normalize.Tolerance = "0.01"
	c.Normalize.DateFormats = config.DefaultDateFormats
	c.Assemble.MaxLineItems = 100
	c.Retry.MaxAttempts = 1
	c.Pipeline.ProcessingTimeoutSecs = 30
	c.Pipeline.DefaultMode = "adhoc"
	c.Batch.Concurrency = 2
	c.Server.Port = 8080
	return c
}
