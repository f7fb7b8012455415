package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status [pdf]",
	Short: "Show per-stage artifact state for a document",
	Long: `Inspect the artifact store without generating anything. With a PDF
argument, show which units of every stage are current, stale, or missing for
that document; without one, list all documents in the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, orch, err := setup()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		docs, err := orch.Documents()
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			ui.Message("No documents in the output directory.")
			return nil
		}
		for _, d := range docs {
			ui.Message("%s", d)
		}
		return nil
	}

	doc, err := resolveDocument(cmd.Context(), orch, args[0])
	if err != nil {
		return err
	}

	status, err := orch.Status(doc.ID)
	if err != nil {
		return err
	}

	ui.Section("Status: " + string(doc.ID))
	if !status.HasPlan {
		ui.Warning("No committed plan; run 'nanoslide plan %s' first", args[0])
		return nil
	}

	ui.Message("Plan fingerprint: %s", status.PlanFingerprint[:16])
	ui.Message("Slides:           %d", status.SlideCount)

	rows := make([][]string, 0, len(status.Stages))
	for _, s := range status.Stages {
		rows = append(rows, []string{
			string(s.Stage),
			fmt.Sprintf("%d", s.Expected),
			fmt.Sprintf("%d", len(s.Done)),
			formatUnits(s.Stale),
			formatUnits(s.Missing),
		})
	}
	ui.Table([]string{"STAGE", "EXPECTED", "DONE", "STALE", "MISSING"}, rows)

	if complete(status) {
		ui.Success("All stages complete")
	}
	return nil
}

func formatUnits(v []int) string {
	if len(v) == 0 {
		return "-"
	}
	return joinInts(v)
}

func complete(status *pipeline.DocumentStatus) bool {
	for _, s := range status.Stages {
		if !s.Complete() {
			return false
		}
	}
	return true
}
