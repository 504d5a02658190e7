package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

var (
	ledgerFingerprint string
	ledgerStatus      string
	ledgerMode        string
	ledgerLimit       int
	ledgerJSON        bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List processing attempts recorded in the file ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		modes := []model.Mode{model.ModeProduction, model.ModeAdhoc}
		if ledgerMode != "" {
			m, err := model.ParseMode(ledgerMode)
			if err != nil {
				return err
			}
			modes = []model.Mode{m}
		}
		filter := ledger.Filter{Fingerprint: ledgerFingerprint, Limit: ledgerLimit}
		if ledgerStatus != "" {
			st, err := model.ParseFileStatus(ledgerStatus)
			if err != nil {
				return err
			}
			filter.Status = st
		}

		st, err := openStores(ctx, true)
		if err != nil {
			return err
		}
		defer st.Close()

		var recs []model.FileRecord
		for _, m := range modes {
			got, err := st.Ledger.List(ctx, m, filter)
			if err != nil {
				return err
			}
			recs = append(recs, got...)
		}

		w := cmd.OutOrStdout()
		if ledgerJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		}
		if ledgerFingerprint != "" {
			for _, m := range modes {
				printInventory(w, ledgerFingerprint, m, recs)
			}
		}
		return printAttempts(w, recs)
	},
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerFingerprint, "fingerprint", "", "only attempts for this content fingerprint")
	ledgerCmd.Flags().StringVar(&ledgerStatus, "status", "", "only attempts in this status: pending, succeeded or failed")
	ledgerCmd.Flags().StringVar(&ledgerMode, "mode", "", "only this processing mode (default both)")
	ledgerCmd.Flags().IntVar(&ledgerLimit, "limit", 50, "max attempts per mode")
	ledgerCmd.Flags().BoolVar(&ledgerJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(ledgerCmd)
}

func printAttempts(w io.Writer, recs []model.FileRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tFINGERPRINT\tATTEMPT\tSTATUS\tFILE\tSTARTED\tRECORDS\tERROR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
			r.Mode,
			shortFingerprint(r.Fingerprint),
			r.Attempt,
			r.Status,
			r.OriginalFilename,
			r.StartedAt.UTC().Format(time.RFC3339),
			len(r.RecordKeys),
			r.Error,
		)
	}
	return tw.Flush()
}

// printInventory prints the per-mode summary for one fingerprint.
func printInventory(w io.Writer, fp string, mode model.Mode, recs []model.FileRecord) {
	var mine []model.FileRecord
	for _, r := range recs {
		if r.Mode == mode {
			mine = append(mine, r)
		}
	}
	if len(mine) == 0 {
		fmt.Fprintf(w, "%s %s: never seen\n", mode, shortFingerprint(fp))
		return
	}
	inv := inventory(mode, mine)
	line := fmt.Sprintf("%s %s: %d attempts, last %s", mode, shortFingerprint(fp), inv.Attempts, inv.Status)
	if inv.Succeeded != nil {
		line += fmt.Sprintf(", succeeded on attempt %d", inv.Succeeded.Attempt)
	}
	fmt.Fprintln(w, line)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
