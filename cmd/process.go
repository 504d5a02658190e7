package main

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
	"github.com/wheelerbb/gcp-invoice-intel/internal/source"
)

var processOpts processFlags

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process a single invoice file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		opts, err := processOpts.options(cfg.Pipeline.DefaultMode)
		if err != nil {
			return err
		}

		doc, err := source.LoadFile(args[0])
		if err != nil {
			return err
		}
		if abs, absErr := filepath.Abs(args[0]); absErr == nil {
			opts.StoragePath = abs
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, procErr := env.Processor.Process(ctx, doc, opts)
		if res != nil {
			if err := printResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		}
		return procErr
	},
}

func init() {
	processOpts.register(processCmd)
	rootCmd.AddCommand(processCmd)
}

func printResult(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
