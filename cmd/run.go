package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-triage/internal/pipeline"
)

var runShowAudit bool

var runCmd = &cobra.Command{
	Use:   "run <denial-letter>",
	Short: "Triage a single denial letter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, args[0])
		if eris.Is(err, pipeline.ErrAwaitingReview) {
			fmt.Fprintf(os.Stderr, "Run %s is awaiting human review.\n", result.RunID)
			fmt.Fprintf(os.Stderr, "Resume with: claims-triage resume %s --approve|--reject\n", result.RunID)
			return printJSON(result)
		}
		if err != nil {
			return eris.Wrap(err, "triage run")
		}

		zap.L().Info("triage complete",
			zap.String("run_id", result.RunID),
			zap.String("decision", string(result.DecisionType)),
			zap.Bool("submitted", result.Submitted),
			zap.Bool("success", result.Success),
		)

		if runShowAudit {
			events, err := env.Store.ListAuditEvents(ctx, result.RunID)
			if err != nil {
				return eris.Wrap(err, "list audit events")
			}
			for _, ev := range events {
				fmt.Fprintf(os.Stderr, "%s  %-24s %s\n",
					ev.Timestamp.Format("15:04:05"), ev.Type, ev.Description)
			}
		}

		return printJSON(result)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.Flags().BoolVar(&runShowAudit, "audit", false, "print the audit trail after the run")
	rootCmd.AddCommand(runCmd)
}
