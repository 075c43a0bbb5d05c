package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/ci"
	"github.com/sells-group/claims-triage/internal/pipeline"
)

var regressManifest string

var regressCmd = &cobra.Command{
	Use:   "regress",
	Short: "Run the gold-corpus regression gate",
	Long:  "Triages every letter in the gold manifest and fails when decision accuracy, hallucination rate, or evidence coverage regresses past the configured gates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		manifestPath := regressManifest
		if manifestPath == "" {
			manifestPath = cfg.Regress.GoldPath
		}
		manifest, err := ci.LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		baseDir := filepath.Dir(manifestPath)

		results := make(map[string]ci.CaseResult, len(manifest.Cases))
		for _, gold := range manifest.Cases {
			letter := gold.File
			if !filepath.IsAbs(letter) {
				letter = filepath.Join(baseDir, letter)
			}
			results[gold.File] = runGoldCase(cmd, env, gold.File, letter)
		}

		report := ci.Evaluate(manifest, results)
		fmt.Fprintln(os.Stdout, ci.FormatMarkdown(report))

		return ci.CheckGates(report, cfg.Regress.MaxHallucinationRate, cfg.Regress.MinEvidenceCoverage)
	},
}

// runGoldCase triages one gold letter and flattens the persisted run state
// into a CaseResult. A run that suspends at the review gate is not an error;
// its decision still counts.
func runGoldCase(cmd *cobra.Command, env *triageEnv, file, letter string) ci.CaseResult {
	ctx := cmd.Context()
	cr := ci.CaseResult{File: file}

	result, err := env.Pipeline.Run(ctx, letter)
	if err != nil && !eris.Is(err, pipeline.ErrAwaitingReview) {
		cr.Err = err.Error()
		return cr
	}

	cr.Decision = result.DecisionType
	cr.CitationCoverage = result.CitationCoverage
	cr.HallucinationCount = result.HallucinationCount

	stateJSON, err := env.Store.GetRunState(ctx, result.RunID)
	if err != nil {
		zap.L().Warn("gold case state unavailable", zap.String("file", file), zap.Error(err))
		return cr
	}
	var state pipeline.RunState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		cr.Err = "decode run state: " + err.Error()
		return cr
	}

	if state.Denial != nil {
		cr.ClaimNumber = state.Denial.ClaimNumber
	}
	if state.Decision != nil {
		cr.Confidence = state.Decision.Rationale.Confidence
	}
	if state.Verify != nil {
		cr.TotalCitations = len(state.Verify.Citations)
	}
	return cr
}

func init() {
	regressCmd.Flags().StringVar(&regressManifest, "manifest", "", "gold manifest path (default from config)")
	rootCmd.AddCommand(regressCmd)
}
