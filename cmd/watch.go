package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wheelerbb/gcp-invoice-intel/internal/pipeline"
	"github.com/wheelerbb/gcp-invoice-intel/internal/source"
)

var (
	watchOpts     processFlags
	watchExisting bool
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Process invoice files as they appear in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := watchOpts.options(cfg.Pipeline.DefaultMode)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		items, errs, err := source.Watch(ctx, args[0], source.WatchOptions{
			InitialScan: watchExisting,
			Debounce:    watchDebounce,
		})
		if err != nil {
			return err
		}

		zap.L().Info("watching for invoices", zap.String("dir", args[0]), zap.String("mode", string(opts.Mode)))
		n := runWatch(ctx, items, errs, env.Processor, opts, cfg.Batch.Concurrency)
		zap.L().Info("watch stopped", zap.Int("files", n))
		return nil
	},
}

func init() {
	watchOpts.register(watchCmd)
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also process files already in the directory")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a written file is processed")
	rootCmd.AddCommand(watchCmd)
}

// runWatch processes watched files until items closes, with at most
// concurrency attempts in flight. It returns the number of files handled.
func runWatch(ctx context.Context, items <-chan source.Item, errs <-chan error, proc processor, opts pipeline.Options, concurrency int) int {
	sem := make(chan struct{}, max(concurrency, 1))
	done := make(chan struct{})
	handled := 0
	inflight := 0

	for items != nil || errs != nil {
		select {
		case item, ok := <-items:
			if !ok {
				items = nil
				continue
			}
			handled++
			inflight++
			sem <- struct{}{}
			go func() {
				defer func() { <-sem; done <- struct{}{} }()
				processWatched(ctx, item, proc, opts)
			}()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			zap.L().Warn("watch error", zap.Error(err))
		case <-done:
			inflight--
		}
	}
	for ; inflight > 0; inflight-- {
		<-done
	}
	return handled
}

func processWatched(ctx context.Context, item source.Item, proc processor, opts pipeline.Options) {
	log := zap.L().With(zap.String("file", item.Path))
	doc, err := source.LoadFile(item.Path)
	if err != nil {
		log.Error("load failed", zap.Error(err))
		return
	}
	opts.StoragePath = item.Path
	res, err := proc.Process(ctx, doc, opts)
	if err != nil {
		log.Error("processing failed", zap.Error(err))
		return
	}
	log.Info("file handled", zap.String("status", string(res.Status)), zap.String("record_key", res.RecordKey))
}
