package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
	"github.com/wheelerbb/gcp-invoice-intel/internal/source"
)

var (
	batchOpts        processFlags
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir|ftp://host/path>",
	Short: "Process every invoice file in a directory or FTP drop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := batchOpts.options(cfg.Pipeline.DefaultMode)
		if err != nil {
			return err
		}

		src, err := source.Open(args[0], source.Options{})
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		sum, err := runBatch(ctx, src, env.Processor, opts, batchLimit, concurrency)
		if err != nil {
			return err
		}
		sum.print(cmd.OutOrStdout())
		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d files failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

func init() {
	batchOpts.register(batchCmd)
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of files to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "files processed in parallel (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// batchSummary counts batch outcomes by status.
type batchSummary struct {
	Total    int                     `json:"total"`
	ByStatus map[pipeline.Status]int `json:"by_status"`
	Failed   int                     `json:"failed"`
	Duration time.Duration           `json:"duration"`
}

func (s batchSummary) print(w io.Writer) {
	fmt.Fprintf(w, "files: %d  processed: %d  already processed: %d  in progress: %d  failed: %d  (%s)\n",
		s.Total,
		s.ByStatus[pipeline.StatusProcessed],
		s.ByStatus[pipeline.StatusAlreadyProcessed],
		s.ByStatus[pipeline.StatusDuplicateInProgress],
		s.Failed,
		s.Duration.Round(time.Millisecond),
	)
}

// runBatch lists src and processes each item with bounded concurrency. One
// file's failure never aborts the rest; only listing errors are returned.
func runBatch(ctx context.Context, src source.Source, proc processor, opts pipeline.Options, limit, concurrency int) (batchSummary, error) {
	start := time.Now()
	sum := batchSummary{ByStatus: make(map[pipeline.Status]int)}

	items, err := src.List(ctx)
	if err != nil {
		return sum, eris.Wrap(err, "batch: list files")
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if len(items) == 0 {
		zap.L().Info("no invoice files found")
		return sum, nil
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(items)),
		zap.Int("concurrency", concurrency),
		zap.String("mode", string(opts.Mode)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	var mu sync.Mutex
	record := func(status pipeline.Status) {
		mu.Lock()
		defer mu.Unlock()
		sum.ByStatus[status]++
		if status == pipeline.StatusFailed {
			sum.Failed++
		}
	}

	for _, item := range items {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", item.Path))

			doc, err := src.Load(gctx, item)
			if err != nil {
				log.Error("load failed", zap.Error(err))
				record(pipeline.StatusFailed)
				return nil
			}

			itemOpts := opts
			itemOpts.StoragePath = item.Path
			res, err := proc.Process(gctx, doc, itemOpts)
			switch {
			case err != nil && gctx.Err() != nil:
				// Canceled attempts stay pending.
				return nil
			case err != nil:
				log.Error("processing failed", zap.Error(err))
				record(pipeline.StatusFailed)
			default:
				record(res.Status)
			}
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "batch processing")
	}

	sum.Total = len(items)
	sum.Duration = time.Since(start)
	zap.L().Info("batch complete",
		zap.Int("processed", sum.ByStatus[pipeline.StatusProcessed]),
		zap.Int("already_processed", sum.ByStatus[pipeline.StatusAlreadyProcessed]),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}
