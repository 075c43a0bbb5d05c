package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claims-triage/internal/config"
	"github.com/sells-group/claims-triage/internal/model"
	"github.com/sells-group/claims-triage/internal/pipeline"
	"github.com/sells-group/claims-triage/internal/resilience"
)

func batchTestConfig() config.BatchConfig {
	return config.BatchConfig{
		MaxConcurrentClaims:   2,
		RetryAttempts:         1,
		RetryInitialBackoffMs: 1,
		RetryMaxBackoffMs:     1,
	}
}

func TestProcessBatch_CountsOutcomes(t *testing.T) {
	paths := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}

	summary := processBatch(context.Background(), paths, 0, batchTestConfig(),
		func(_ context.Context, path string) (*model.RunResult, error) {
			switch path {
			case "a.pdf":
				return &model.RunResult{Success: true, FinalStep: "done"}, nil
			case "b.pdf":
				return &model.RunResult{FinalStep: "review"}, pipeline.ErrAwaitingReview
			case "c.pdf":
				return nil, eris.New("extraction exploded")
			default:
				return &model.RunResult{Success: false, FinalStep: "failed", ErrorMessage: "bad letter"}, nil
			}
		})

	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Suspended)
	assert.Equal(t, 2, summary.Failed)
}

func TestProcessBatch_AppliesLimit(t *testing.T) {
	var calls atomic.Int64

	summary := processBatch(context.Background(), []string{"a", "b", "c"}, 2, batchTestConfig(),
		func(context.Context, string) (*model.RunResult, error) {
			calls.Add(1)
			return &model.RunResult{Success: true, FinalStep: "done"}, nil
		})

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, int64(2), calls.Load())
}

func TestProcessBatch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64

	cfg := batchTestConfig()
	cfg.RetryAttempts = 3

	summary := processBatch(context.Background(), []string{"a"}, 0, cfg,
		func(context.Context, string) (*model.RunResult, error) {
			if calls.Add(1) < 3 {
				return nil, resilience.NewTransientError(eris.New("rate limited"), 429)
			}
			return &model.RunResult{Success: true, FinalStep: "done"}, nil
		})

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, summary.Failed)
}

func TestProcessBatch_DoesNotRetrySuspension(t *testing.T) {
	var calls atomic.Int64

	cfg := batchTestConfig()
	cfg.RetryAttempts = 3

	summary := processBatch(context.Background(), []string{"a"}, 0, cfg,
		func(context.Context, string) (*model.RunResult, error) {
			calls.Add(1)
			return &model.RunResult{FinalStep: "review"}, pipeline.ErrAwaitingReview
		})

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, summary.Suspended)
}

func TestCollectLetters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.txt", "notes.docx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	paths, err := collectLetters(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
}

func TestCollectLetters_Empty(t *testing.T) {
	_, err := collectLetters(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no denial letters")
}
