package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wheelerbb/gcp-invoice-intel/internal/export"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
	"github.com/wheelerbb/gcp-invoice-intel/internal/sink"
)

var (
	exportSince string
	exportMode  string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Export persisted invoices and line items to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		since, err := export.ParseSince(exportSince, time.Now())
		if err != nil {
			return err
		}
		q := sink.HeaderQuery{Since: since, Limit: exportLimit}
		if exportMode != "" {
			m, err := model.ParseMode(exportMode)
			if err != nil {
				return err
			}
			q.Mode = m
		}

		st, err := openStores(ctx, true)
		if err != nil {
			return err
		}
		defer st.Close()

		sum, err := export.WriteFile(ctx, st.Sink, q, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d invoices, %d line items\n", args[0], sum.Invoices, sum.LineItems)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only records processed since: 2006-01-02, RFC 3339, a duration or Nd")
	exportCmd.Flags().StringVar(&exportMode, "mode", "", "only this processing mode (default both)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max invoices (0 = store default)")
	rootCmd.AddCommand(exportCmd)
}
