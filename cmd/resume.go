package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/pipeline"
)

var (
	resumeApprove    bool
	resumeReject     bool
	resumeReviewer   string
	resumeNotes      string
	resumeEditedText string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run that is awaiting human review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if resumeApprove == resumeReject {
			return eris.New("exactly one of --approve or --reject is required")
		}
		if resumeReviewer == "" {
			return eris.New("--reviewer is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		verdict := &pipeline.ReviewVerdict{
			Approved:   resumeApprove,
			Reviewer:   resumeReviewer,
			Notes:      resumeNotes,
			EditedText: resumeEditedText,
		}

		result, err := env.Pipeline.Resume(ctx, args[0], verdict)
		if err != nil {
			return eris.Wrap(err, "resume run")
		}

		zap.L().Info("run resumed",
			zap.String("run_id", args[0]),
			zap.Bool("approved", resumeApprove),
			zap.Bool("submitted", result.Submitted),
			zap.Bool("success", result.Success),
		)
		return printJSON(result)
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeApprove, "approve", false, "approve the drafted appeal")
	resumeCmd.Flags().BoolVar(&resumeReject, "reject", false, "reject the drafted appeal")
	resumeCmd.Flags().StringVar(&resumeReviewer, "reviewer", "", "reviewer identifier (required)")
	resumeCmd.Flags().StringVar(&resumeNotes, "notes", "", "review notes")
	resumeCmd.Flags().StringVar(&resumeEditedText, "edited-text", "", "replacement appeal text")
	rootCmd.AddCommand(resumeCmd)
}
