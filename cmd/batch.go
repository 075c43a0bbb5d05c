package main

import (
	"context"
	"io/fs"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/internal/pipeline"
	"github.com/sells-group/claims-triage/internal/resilience"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch <letter-dir>",
	Short: "Triage a directory of denial letters concurrently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := collectLetters(args[0])
		if err != nil {
			return err
		}

		summary := processBatch(ctx, paths, batchLimit, cfg.Batch, func(ctx context.Context, path string) (*model.RunResult, error) {
			return env.Pipeline.Run(ctx, path)
		})

		zap.L().Info("batch complete",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("suspended", summary.Suspended),
			zap.Int("failed", summary.Failed),
		)
		if summary.Failed > 0 {
			return eris.Errorf("batch: %d of %d letters failed", summary.Failed, summary.Processed)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of letters to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

func collectLetters(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf", ".txt":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "walk letter dir %s", dir)
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("no denial letters found in %s", dir)
	}
	return paths, nil
}

// triageFunc is the callback signature for triaging one letter.
type triageFunc func(ctx context.Context, path string) (*model.RunResult, error)

// batchSummary aggregates batch outcomes. Suspended runs are awaiting human
// review and count as neither success nor failure.
type batchSummary struct {
	Processed int
	Succeeded int
	Suspended int
	Failed    int
}

// processBatch applies limit, then triages letters concurrently. Transient
// failures are retried per the batch retry config; a letter that suspends at
// the review gate is left for `resume` and never retried.
func processBatch(ctx context.Context, paths []string, limit int, batchCfg config.BatchConfig, triage triageFunc) batchSummary {
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	concurrency := batchCfg.MaxConcurrentClaims
	if concurrency <= 0 {
		concurrency = 1
	}
	retryCfg := resilience.FromRetryConfig(
		batchCfg.RetryAttempts,
		batchCfg.RetryInitialBackoffMs,
		batchCfg.RetryMaxBackoffMs,
		batchCfg.RetryMultiplier,
		-1,
	)

	zap.L().Info("processing batch",
		zap.Int("letters", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	var succeeded, suspended, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, path := range paths {
		g.Go(func() error {
			rc := retryCfg
			rc.OnRetry = resilience.RetryLogger("triage", path)

			var result *model.RunResult
			err := resilience.Do(gctx, rc, func(ctx context.Context) error {
				var runErr error
				result, runErr = triage(ctx, path)
				if eris.Is(runErr, pipeline.ErrAwaitingReview) {
					// Awaiting review is a valid resting state, not a failure.
					return nil
				}
				return runErr
			})

			switch {
			case err != nil:
				failed.Add(1)
				zap.L().Error("letter triage failed", zap.String("path", path), zap.Error(err))
			case result != nil && result.FinalStep == "review":
				suspended.Add(1)
				zap.L().Info("letter awaiting review",
					zap.String("path", path),
					zap.String("run_id", result.RunID),
				)
			case result != nil && result.Success:
				succeeded.Add(1)
			default:
				failed.Add(1)
				if result != nil {
					zap.L().Warn("letter triage unsuccessful",
						zap.String("path", path),
						zap.String("error", result.ErrorMessage),
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return batchSummary{
		Processed: len(paths),
		Succeeded: int(succeeded.Load()),
		Suspended: int(suspended.Load()),
		Failed:    int(failed.Load()),
	}
}
