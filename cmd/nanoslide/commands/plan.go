package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/domain"
)

var (
	planPrompt string
	planForce  bool
)

var planCmd = &cobra.Command{
	Use:   "plan <pdf>",
	Short: "Generate and commit the slide plan for a document",
	Long: `Analyze the PDF with the plan model and commit a validated slide plan.
A committed plan is reused by every later command; use --force to discard it
and generate a fresh one. Artifacts rendered from the old plan stay on disk
but are treated as stale.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planPrompt, "prompt", "p", "", "style prompt passed to the plan model verbatim")
	planCmd.Flags().BoolVar(&planForce, "force", false, "discard the committed plan and regenerate")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, orch, err := setup()
	if err != nil {
		return err
	}

	doc, err := resolveDocument(ctx, orch, args[0])
	if err != nil {
		return stageError(domain.StagePlan, err)
	}

	spin := ui.NewSpinner("Planning slides...")
	spin.Start()
	result, err := orch.Plan(ctx, doc, planPrompt, planForce)
	spin.Stop()
	if err != nil {
		return stageError(domain.StagePlan, err)
	}

	printReport(result.Report)
	ui.Message("Document:    %s", doc.ID)
	ui.Message("Slides:      %d", result.Plan.SlideCount())
	ui.Message("Transitions: %d authored, %d total segments", len(result.Plan.Transitions), result.Plan.SegmentCount())
	ui.Message("Fingerprint: %s", result.Fingerprint[:16])
	return nil
}
