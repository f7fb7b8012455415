package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/monitoring"
)

var (
	pipePrompt string
	pipeForce  bool
)

var pipeCmd = &cobra.Command{
	Use:   "pipe <pdf>",
	Short: "Run the full pipeline: plan, slides, presentation, video, fuse",
	Long: `Run every stage in order. Work that is already done for the current plan
is skipped, so rerunning pipe after a partial failure generates only the
missing pieces. The run stops early only when a stage completes none of its
units; partial stages proceed so later reruns can fill the gaps.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipe,
}

func init() {
	pipeCmd.Flags().StringVarP(&pipePrompt, "prompt", "p", "", "style prompt passed to the plan model verbatim")
	pipeCmd.Flags().BoolVar(&pipeForce, "force", false, "discard the committed plan and regenerate")
	rootCmd.AddCommand(pipeCmd)
}

func runPipe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, orch, err := setup()
	if err != nil {
		return err
	}

	doc, err := resolveDocument(ctx, orch, args[0])
	if err != nil {
		return err
	}

	ui.Section("Pipeline: " + string(doc.ID))

	result, runErr := orch.Run(ctx, doc, pipePrompt, pipeForce)
	if result != nil {
		for _, r := range result.Reports {
			printReport(r)
		}
	}
	if runErr != nil {
		return runErr
	}

	switch result.Status {
	case monitoring.RunStatusCompleted:
		ui.Success("Pipeline complete: %s", orch.Store().Path(fusedStoreKey(doc.ID)))
	case monitoring.RunStatusPartial:
		ui.Warning("Pipeline finished with failed units; rerun pipe to fill the gaps")
		return failedUnitsError(result.Reports...)
	}
	return nil
}
