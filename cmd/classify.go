package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/ingest"
	"github.com/sells-group/claims-triage/internal/pipeline"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <letter-dir>",
	Short: "Batch-extract denial letters without triaging them",
	Long:  "Extracts structured claim data from every letter in a directory through the Message Batches API and prints an intake summary. Useful for previewing a backlog before a full batch run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		paths, err := collectLetters(args[0])
		if err != nil {
			return err
		}

		docs := make([]ingest.ParsedDocument, 0, len(paths))
		for _, path := range paths {
			text, err := env.Extractor.ExtractText(ctx, path)
			if err != nil {
				zap.L().Warn("skipping unreadable letter", zap.String("path", path), zap.Error(err))
				continue
			}
			docs = append(docs, ingest.Parse(path, text))
		}
		if len(docs) == 0 {
			return eris.Errorf("no readable letters in %s", args[0])
		}

		denials, failures, err := pipeline.ExtractBatch(ctx, docs, env.Anthropic, cfg.Anthropic, cfg.Triage.MaxExtractChars)
		if err != nil {
			return eris.Wrap(err, "batch extraction")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LETTER\tCLAIM\tREASON\tPAYOR\tCONFIDENCE")
		for _, doc := range docs {
			if ferr, ok := failures[doc.Path]; ok {
				fmt.Fprintf(w, "%s\t-\tEXTRACTION FAILED: %v\t-\t-\n", doc.Path, ferr)
				continue
			}
			d, ok := denials[doc.Path]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n",
				doc.Path, d.ClaimNumber, d.DenialReason, d.PayorName, d.Confidence)
		}
		if err := w.Flush(); err != nil {
			return eris.Wrap(err, "flush output")
		}

		if len(failures) > 0 {
			return eris.Errorf("classify: %d of %d letters failed extraction", len(failures), len(docs))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
