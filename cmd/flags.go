package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
)

// processor is the part of *pipeline.Processor the commands drive.
type processor interface {
	Process(ctx context.Context, doc ocr.Document, opts pipeline.Options) (*pipeline.Result, error)
}

// processFlags are the mode flags shared by process, batch and watch.
type processFlags struct {
	mode           string
	skipRefinement bool
	force          bool
}

func (f *processFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "", "processing mode: production or adhoc (default from config)")
	cmd.Flags().BoolVar(&f.skipRefinement, "skip-refinement", false, "extraction only, no generative refinement")
	cmd.Flags().BoolVar(&f.force, "force", false, "reprocess content that already succeeded in this mode")
}

// options resolves the flags against the configured default mode.
func (f *processFlags) options(defaultMode string) (pipeline.Options, error) {
	raw := f.mode
	if raw == "" {
		raw = defaultMode
	}
	mode, err := model.ParseMode(raw)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{Mode: mode, SkipRefinement: f.skipRefinement, Force: f.force}, nil
}
